package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/server/runner"
)

// maxDocumentSize bounds the body of POST /api/bootstrap.
const maxDocumentSize = 1 << 20

// TriggerAPI is recorded as the trigger of runs started over HTTP.
const TriggerAPI = "api"

// BootstrapResponse is returned when a run was accepted.
type BootstrapResponse struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
}

// BootstrapHandler starts a bootstrap run from the YAML or JSON document in
// the request body. The query parameter edit=true selects edit mode.
type BootstrapHandler struct {
	logger *slog.Logger
	runner BootstrapRunner
}

// NewBootstrapHandler creates a new BootstrapHandler.
func NewBootstrapHandler(logger *slog.Logger, r BootstrapRunner) *BootstrapHandler {
	return &BootstrapHandler{
		logger: logger,
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mode := document.Create
	if v := r.URL.Query().Get("edit"); v != "" {
		edit, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid edit parameter %q", v))
			return
		}
		if edit {
			mode = document.Edit
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("failed to read document: %v", err))
		return
	}

	doc, err := document.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.runner.Run(doc, mode, TriggerAPI)
	if err != nil {
		var verr *document.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:    "invalid configuration document",
				Problems: verr.Problems,
			})
		case errors.Is(err, runner.ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to start bootstrap", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	h.logger.Info("bootstrap accepted", "run_id", id, "mode", mode, "provider", doc.Provider.Name)
	writeJSON(w, http.StatusAccepted, BootstrapResponse{ID: id, Mode: mode.String()})
}
