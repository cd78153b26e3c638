package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ssocolow/zk-hyle/internal/upstream"
	"github.com/ssocolow/zk-hyle/pkg/httpx"
)

// relayRoute binds an inbound route to the node endpoint it forwards to.
type relayRoute struct {
	name string
	path string
}

func (s *Server) relayHandler(route relayRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var payload json.RawMessage
		if status := readJSONBody(w, r, &payload); status != 0 {
			s.countRelay(route, status)
			return
		}

		if s.replayRelay(w, r, route, payload) {
			return
		}
		s.forward(w, r, route, payload)
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, route relayRoute, payload json.RawMessage) {
	result, err := s.upstream.Forward(r.Context(), route.path, payload)
	if err != nil {
		var unreachable *upstream.UnreachableError
		if errors.As(err, &unreachable) {
			log.Warnw("hyle node unreachable", "route", route.name, "err", err)
			s.metrics.upstreamFailures.WithLabelValues(route.name).Inc()
			s.countRelay(route, http.StatusBadGateway)
			httpx.WriteError(w, http.StatusBadGateway, codeUpstreamUnreachable, err.Error())
			return
		}
		log.Errorw("relay failed", "route", route.name, "err", err)
		s.countRelay(route, http.StatusInternalServerError)
		httpx.WriteError(w, http.StatusInternalServerError, codeUnexpected, err.Error())
		return
	}

	log.Debugw("relayed to hyle node", "route", route.name, "status", result.StatusCode)
	s.countRelay(route, result.StatusCode)
	httpx.WriteRawJSON(w, result.StatusCode, result.Body)
}

func (s *Server) countRelay(route relayRoute, status int) {
	s.metrics.relayRequests.WithLabelValues(route.name, strconv.Itoa(status)).Inc()
}
