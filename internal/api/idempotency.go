package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ssocolow/zk-hyle/internal/idempotency"
	"github.com/ssocolow/zk-hyle/pkg/httpx"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	replayWaitLimit   = 4 * time.Second
	replayPollEvery   = 100 * time.Millisecond
)

// replayRelay answers a relay request carrying an Idempotency-Key. A key seen
// before with the same payload gets the stored response and the node is not
// called again; a key seen with a different payload is refused with 422. A new
// key forwards once and stores the response unless it is a 5xx. It reports false
// when replay is off or the request has no key.
func (s *Server) replayRelay(w http.ResponseWriter, r *http.Request, route relayRoute, payload json.RawMessage) bool {
	if s.idempotency == nil {
		return false
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		return false
	}
	scope := "relay:" + route.name
	fingerprint := idempotency.Fingerprint(payload)

	stored, found, err := s.idempotency.Get(r.Context(), scope, key)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, codeUnexpected, err.Error())
		return true
	}
	if found {
		writeStoredRelay(w, stored, fingerprint)
		return true
	}

	owner := "relay-" + uuid.NewString()
	claimed, err := s.idempotency.Claim(r.Context(), scope, key, owner, s.idempotencyLock)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, codeUnexpected, err.Error())
		return true
	}
	if !claimed {
		if stored, found := s.awaitStoredRelay(r.Context(), scope, key); found {
			writeStoredRelay(w, stored, fingerprint)
			return true
		}
		httpx.WriteError(w, http.StatusConflict, "request_in_progress", "another request with this idempotency key is still in progress")
		return true
	}
	defer func() {
		_ = s.idempotency.Release(context.Background(), scope, key, owner)
	}()

	captured := newCapturedResponse()
	s.forward(captured, r, route, payload)

	if captured.status < http.StatusInternalServerError {
		entry := idempotency.Entry{
			StatusCode: captured.status,
			BodyHash:   fingerprint,
			Body:       bytes.Clone(captured.body.Bytes()),
		}
		if err := s.idempotency.Save(context.Background(), scope, key, entry, s.idempotencyTTL); err != nil {
			log.Warnw("failed to store relayed response", "route", route.name, "err", err)
		}
	}
	httpx.WriteRawJSON(w, captured.status, captured.body.Bytes())
	return true
}

// awaitStoredRelay polls until the holder of the claim stores its response.
func (s *Server) awaitStoredRelay(ctx context.Context, scope, key string) (idempotency.Entry, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, replayWaitLimit)
	defer cancel()

	ticker := time.NewTicker(replayPollEvery)
	defer ticker.Stop()

	for {
		stored, found, err := s.idempotency.Get(waitCtx, scope, key)
		if err != nil {
			return idempotency.Entry{}, false
		}
		if found {
			return stored, true
		}
		select {
		case <-waitCtx.Done():
			return idempotency.Entry{}, false
		case <-ticker.C:
		}
	}
}

func writeStoredRelay(w http.ResponseWriter, stored idempotency.Entry, fingerprint string) {
	if stored.BodyHash != fingerprint {
		httpx.WriteError(w, http.StatusUnprocessableEntity, codeKeyReused,
			"Idempotency-Key was already used with a different request body")
		return
	}
	status := stored.StatusCode
	if status <= 0 {
		status = http.StatusOK
	}
	w.Header().Set(replayedHeader, "true")
	httpx.WriteRawJSON(w, status, stored.Body)
}

// capturedResponse buffers what forward writes so it can be stored before the
// caller sees it.
type capturedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCapturedResponse() *capturedResponse {
	return &capturedResponse{header: make(http.Header)}
}

func (c *capturedResponse) Header() http.Header {
	return c.header
}

func (c *capturedResponse) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capturedResponse) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}
