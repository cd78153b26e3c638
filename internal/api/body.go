package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ssocolow/zk-hyle/pkg/httpx"
)

// readJSONBody reads the request body and parses it as JSON whatever the declared
// Content-Type. On failure it writes the error response itself and returns the
// status it wrote; it returns 0 when dest was filled.
func readJSONBody(w http.ResponseWriter, r *http.Request, dest any) int {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(w, http.StatusInternalServerError, codeUnexpected, err.Error())
		return http.StatusInternalServerError
	}
	if len(raw) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, codeBadRequest, "No data provided")
		return http.StatusBadRequest
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("Invalid JSON format: %v", err))
		return http.StatusBadRequest
	}
	return 0
}
