package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
	// Problems lists every validation problem of a rejected document.
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
