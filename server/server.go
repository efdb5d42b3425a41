// Package server provides the HTTP server of the provisioning orchestrator.
//
// The server accepts configuration documents over a REST API, runs one
// bootstrap at a time against the control plane and keeps a history of runs
// with the logs captured for every stage.
//
// # Endpoints
//
//   - GET /health - Health check, returns "ok" once a configuration is loaded
//   - GET /api/status - Build info, current run with live stage progress, next scheduled run
//   - GET /api/run - Current or last run status
//   - GET /api/result - Result of the last finished run
//   - POST /api/bootstrap - Starts a run; the body is the document, ?edit=true selects edit mode
//   - GET /history - Finished runs, most recent first
//   - GET /history/logs?id= - Stage progress and logs of one run
//   - POST /history/reload - Re-reads the history from the state directory
//   - GET /config - Current provisioning configuration as YAML, token redacted
//   - POST /reload - Reloads the provisioning configuration from disk
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// Config-derived dependencies (the configuration and the control plane
// client) are swapped atomically on reload. Each run captures the
// dependencies when it starts, so a reload takes effect on the next run
// without disturbing the one in progress.
//
// # Example
//
//	srv, err := server.New(serverCfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/buildinfo"
	"github.com/nomis52/goprovision/clients/platformclient"
	"github.com/nomis52/goprovision/config"
	"github.com/nomis52/goprovision/metrics"
	serverconfig "github.com/nomis52/goprovision/server/config"
	"github.com/nomis52/goprovision/server/cron"
	"github.com/nomis52/goprovision/server/handlers"
	"github.com/nomis52/goprovision/server/runner"
	"github.com/nomis52/goprovision/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
	client *platformclient.Client
}

// Server is the HTTP server of the provisioning orchestrator.
type Server struct {
	cfg        *serverconfig.ServerConfig
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	deps       atomic.Pointer[serverDeps]
	httpServer *http.Server
	certLoader *CertLoader
	runner     *runner.Runner
	store      runner.StateStore
	cron       *cron.CronTriggerManager
	metrics    *metrics.ScrapeRegistry
	properties types.ServerProperties
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger replaces the JSON logger the server writes to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithStateStore replaces the history store chosen from the state directory.
func WithStateStore(store runner.StateStore) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// New creates a new Server from the server configuration. It loads the
// provisioning configuration and initializes all dependencies.
func New(cfg *serverconfig.ServerConfig, opts ...Option) (*Server, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logLevel := &slog.LevelVar{}
	logLevel.Set(level)

	s := &Server{
		cfg:      cfg,
		logger:   slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})),
		logLevel: logLevel,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	if s.store == nil {
		s.store = runner.NewMemoryStore()
		if cfg.StateDir != "" {
			disk, err := runner.NewDiskStore(cfg.StateDir, cfg.HistorySize, s.logger)
			if err != nil {
				return nil, fmt.Errorf("opening state dir: %w", err)
			}
			s.store = disk
		}
	}

	s.metrics, err = metrics.NewScrapeRegistry(metrics.WithBuildInfo(buildinfo.Get()))
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	bootstrapMetrics, err := metrics.NewBootstrapMetrics(s.metrics)
	if err != nil {
		return nil, fmt.Errorf("registering bootstrap metrics: %w", err)
	}

	s.runner = runner.New(s.logger, s,
		runner.WithStateStore(s.store),
		runner.WithSink(bootstrapMetrics),
	)

	if len(cfg.Cron) > 0 {
		s.cron, err = cron.NewCronTriggerManager(cfg.Cron, s.runner, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron triggers: %w", err)
		}
	}

	if cfg.Listener.TLSEnabled() {
		s.certLoader, err = NewCertLoader(cfg.Listener.TLSCert, cfg.Listener.TLSKey, s.logger)
		if err != nil {
			return nil, err
		}
	}

	hostname, _ := os.Hostname()
	s.properties = types.ServerProperties{
		Build:      buildinfo.Get(),
		StartedAt:  time.Now(),
		Hostname:   hostname,
		ConfigPath: cfg.ProvisionConfig,
		Scheduled:  len(cfg.Cron),
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogLevel changes the server's log level at runtime.
func (s *Server) SetLogLevel(level slog.Level) {
	s.logLevel.Set(level)
}

// Reload reads the provisioning config from disk and rebuilds the control
// plane client. The previous dependencies are kept if loading fails.
func (s *Server) Reload() error {
	path := s.cfg.ProvisionConfig
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	client, err := platformclient.New(cfg.Platform.URL,
		platformclient.WithToken(cfg.Platform.APIToken),
		platformclient.WithCustomer(cfg.Platform.CustomerUUID),
		platformclient.WithTimeout(cfg.Platform.Timeout),
		platformclient.WithLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}

	s.deps.Store(&serverDeps{
		config: &cfg,
		client: client,
	})

	s.logger.Info("configuration loaded", "config_path", path, "platform", cfg.Platform.URL)
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	if d := s.deps.Load(); d != nil {
		return d.config
	}
	return nil
}

// ResourceClient returns the current control plane client.
func (s *Server) ResourceClient() bootstrap.ResourceClient {
	d := s.deps.Load()
	if d == nil || d.client == nil {
		return nil
	}
	return d.client
}

// Properties returns metadata about the running server.
func (s *Server) Properties() types.ServerProperties {
	return s.properties
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// LastResult returns the result of the last finished run.
func (s *Server) LastResult() *bootstrap.Result {
	return s.runner.LastResult()
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It cancels any run in progress and performs a graceful shutdown when the
// context is done. Cron triggers, if configured, are started automatically.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listener.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = s.certLoader.TLSConfig()
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Listener.Addr,
			"tls", s.certLoader != nil,
			"config_path", s.cfg.ProvisionConfig,
			"version", s.properties.Build.Version,
		)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		s.runner.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.runner.Wait()
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", handlers.NewHealthHandler(s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/run", handlers.NewRunStatusHandler(s))
	mux.Handle("GET /api/result", handlers.NewResultHandler(s))
	mux.Handle("POST /api/bootstrap", handlers.NewBootstrapHandler(s.logger, s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /history/logs", handlers.NewHistoryLogsHandler(s.runner))
	if store, ok := s.store.(handlers.ReloadableStore); ok {
		mux.Handle("POST /history/reload", handlers.NewHistoryReloadHandler(s.logger, store))
	}
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("GET /metrics", s.metrics.Handler())
}
