package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/goprovision/server/runner"
	"github.com/nomis52/goprovision/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server  types.ServerProperties `json:"server"`
	Run     runner.RunStatus       `json:"run"`
	NextRun NextRunResponse        `json:"next_run"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()

	writeJSON(w, http.StatusOK, APIStatusResponse{
		Server: h.provider.Properties(),
		// Includes the live stage table with logs while a run is in progress.
		Run: h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
	})
}
