package handlers

import "net/http"

// HealthHandler reports whether the server has a usable configuration.
type HealthHandler struct {
	provider ConfigProvider
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(provider ConfigProvider) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if h.provider.Config() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no configuration loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
