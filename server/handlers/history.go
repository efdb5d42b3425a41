package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/goprovision/server/runner"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()
	if history == nil {
		history = []runner.RunSummary{}
	}
	writeJSON(w, http.StatusOK, history)
}

// HistoryLogsHandler handles requests for the stage logs of a specific run.
type HistoryLogsHandler struct {
	provider HistoryProvider
}

// NewHistoryLogsHandler creates a new HistoryLogsHandler.
func NewHistoryLogsHandler(provider HistoryProvider) *HistoryLogsHandler {
	return &HistoryLogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	stages, err := h.provider.Logs(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, runner.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stages)
}

// ReloadableStore is a history store that can be re-read from disk.
type ReloadableStore interface {
	Reload() error
}

// HistoryReloadHandler re-reads the run history, picking up files that were
// copied into or removed from the state directory by hand.
type HistoryReloadHandler struct {
	logger *slog.Logger
	store  ReloadableStore
}

// NewHistoryReloadHandler creates a new HistoryReloadHandler.
func NewHistoryReloadHandler(logger *slog.Logger, store ReloadableStore) *HistoryReloadHandler {
	return &HistoryReloadHandler{
		logger: logger,
		store:  store,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(); err != nil {
		h.logger.Error("failed to reload run history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload run history: "+err.Error())
		return
	}

	h.logger.Info("run history reloaded")
	w.WriteHeader(http.StatusNoContent)
}
