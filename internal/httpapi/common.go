// Package httpapi exposes every worker and enqueuer as an HTTP POST handler
// (spec.md §6): one handler per batch function, so a cron fire and a manual
// operator call run the exact same code path as the ticker-driven loops in
// cmd/flowmaild.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flowmail/flowmail-core/internal/domain"
)

const defaultWorkspaceID = "default"

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to the status codes spec.md §7 describes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *domain.ErrValidation:
		status = http.StatusBadRequest
	case *domain.ErrUnauthorized:
		status = http.StatusUnauthorized
	case *domain.ErrNotFound:
		status = http.StatusNotFound
	case *domain.ErrStore:
		status = http.StatusBadGateway
	case *domain.ErrDownstream:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// workspaceOrDefault returns req's workspaceId, falling back to "default"
// per spec.md §9's single-tenant convention.
func workspaceOrDefault(id string) string {
	if id == "" {
		return defaultWorkspaceID
	}
	return id
}

// clampInt bounds n to [1, max], substituting fallback when n<=0.
func clampInt(n, fallback, max int) int {
	if n <= 0 {
		n = fallback
	}
	if n > max {
		n = max
	}
	return n
}

// withCORS wraps a handler so OPTIONS preflights succeed and every response
// carries permissive CORS headers (spec.md §6: "respond to OPTIONS with CORS
// headers permitting POST").
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-flowmail-runner-token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("invalid request body: %v", err)
	}
	return nil
}
