package handlers

import (
	"net/http"
)

// RunStatusHandler handles requests for the current run status.
type RunStatusHandler struct {
	provider RunStatusProvider
}

// NewRunStatusHandler creates a new RunStatusHandler.
func NewRunStatusHandler(provider RunStatusProvider) *RunStatusHandler {
	return &RunStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler. The response carries the live stage
// table while a run is in progress and the last finished run otherwise.
func (h *RunStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Status())
}
