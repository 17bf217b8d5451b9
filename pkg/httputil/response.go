// Package httputil holds the small helpers shared by the sync server's
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON sends v with status. The header is already out when encoding
// fails, so the error is dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess answers a health probe.
func WriteSuccess(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
