// Package httpapi provides the shared pieces of every service's HTTP
// control surface: router construction, the health endpoint and JSON
// response helpers.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter returns a mux router with GET /healthz installed.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", HandleHealth).Methods(http.MethodGet)
	return r
}

// HandleHealth serves the liveness probe.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

// Ack acknowledges a bus push message without content. Invalid input is
// acknowledged too, so the bus never redelivers garbage forever.
func Ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
