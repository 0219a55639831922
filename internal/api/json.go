package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"haulboard/internal/boards"
	"haulboard/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeStoreError maps the well-known domain errors onto problem responses.
// Anything unexpected becomes the generic 503 so internals never leak.
func writeStoreError(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "", instance)
	case errors.Is(err, store.ErrDuplicateIntegration):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error(), instance)
	case errors.Is(err, boards.ErrNoIntegrations):
		writeProblem(w, http.StatusBadRequest, "No active loadboard integration", err.Error(), instance)
	default:
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "server is temporarily unavailable", instance)
	}
}
