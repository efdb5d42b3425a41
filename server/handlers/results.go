package handlers

import (
	"net/http"
)

// ResultHandler handles requests for the result of the last finished run.
type ResultHandler struct {
	provider ResultProvider
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(provider ResultProvider) *ResultHandler {
	return &ResultHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ResultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.provider.LastResult()
	if result == nil {
		writeError(w, http.StatusNotFound, "no bootstrap has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
