package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ssocolow/zk-hyle/internal/interest"
	"github.com/ssocolow/zk-hyle/pkg/httpx"
)

const hashedInterestsSaved = "Hashed interests saved successfully"

func (s *Server) handleReceiveHashedInterests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	var body any
	if status := readJSONBody(w, r, &body); status != 0 {
		return
	}
	obj, _ := body.(map[string]any)
	// The address is stored exactly as sent; " A" and "A" are different keys.
	address, _ := obj["address"].(string)
	if strings.TrimSpace(address) == "" {
		httpx.WriteError(w, http.StatusBadRequest, codeBadRequest, "Missing address")
		return
	}

	fields := make(map[string]any, len(interest.Fields))
	var missing []string
	for _, name := range interest.Fields {
		value, ok := obj[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		fields[name] = value
	}

	if len(missing) > 0 {
		if s.strictInterests {
			httpx.WriteError(w, http.StatusBadRequest, codeBadRequest, "Missing hashed interests: "+strings.Join(missing, ", "))
			return
		}
		log.Infow("ignoring partial hashed interests", "address", address, "missing", missing)
		s.metrics.interestMerges.WithLabelValues("skipped").Inc()
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": hashedInterestsSaved})
		return
	}

	if err := s.interests.Merge(r.Context(), address, fields); err != nil {
		var persistErr *interest.PersistenceError
		code := codeUnexpected
		if errors.As(err, &persistErr) {
			code = codePersistenceFailed
		}
		s.metrics.interestMerges.WithLabelValues("failed").Inc()
		httpx.WriteError(w, http.StatusInternalServerError, code, err.Error())
		return
	}

	s.metrics.interestMerges.WithLabelValues("merged").Inc()
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": hashedInterestsSaved})
}

func (s *Server) handleHashedInterestsByAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	address := strings.TrimPrefix(r.URL.Path, "/hashed-interests/")
	if strings.TrimSpace(address) == "" {
		httpx.WriteError(w, http.StatusBadRequest, codeBadRequest, "Missing address")
		return
	}

	record, ok, err := s.interests.Get(r.Context(), address)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, codeUnexpected, err.Error())
		return
	}
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, codeNotFound, "no hashed interests for address")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"address":   address,
		"interests": record,
	})
}
