package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler re-reads the provisioning configuration from disk. A run in
// progress keeps the configuration it started with.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading configuration")

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload configuration", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload configuration: "+err.Error())
		return
	}

	h.logger.Info("configuration reloaded successfully")
	w.WriteHeader(http.StatusNoContent)
}
