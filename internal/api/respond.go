// Package api is the HTTP adapter (spec component F): a thin layer that
// decodes requests, dispatches to the engine, and maps its structured error
// kinds to status codes. It holds no state of its own beyond the
// collaborators it was built with.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/relayq/relayq/internal/engine"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeNoBody(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// errorResponse is the JSON body for any 4xx/5xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an engine error kind to its HTTP status per spec.md §7
// and writes a small JSON body describing it. Errors that aren't an
// *engine.Error map to 500, since engine.KindOf reports them as Internal;
// handlers wrap their own binding and validation failures in
// engine.BadRequest before calling this.
func writeError(w http.ResponseWriter, err error) {
	status := statusForKind(engine.KindOf(err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindNoSuchQueue, engine.KindNoSuchJob:
		return http.StatusNotFound
	case engine.KindBadRequest:
		return http.StatusBadRequest
	case engine.KindConflict:
		return http.StatusConflict
	case engine.KindRedisConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
