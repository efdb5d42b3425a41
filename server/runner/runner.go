// Package runner manages bootstrap run execution for the goprovision server.
//
// The runner handles:
//   - Validating documents and starting bootstrap runs in the background
//   - Preventing concurrent runs
//   - Tracking live per-stage progress and captured logs
//   - Maintaining history of completed runs
//
// Each run builds a fresh orchestrator from the current configuration,
// so config changes take effect on the next run.
//
// # Example
//
//	r := runner.New(logger, deps)
//
//	id, err := r.Run(doc, document.Create, "api")
//	if errors.Is(err, runner.ErrRunInProgress) {
//	    // Handle concurrent run attempt
//	}
//
//	status := r.Status()
//	for _, st := range status.Stages {
//	    fmt.Printf("%s [%s]: %s\n", st.Name, st.Status, st.Message)
//	}
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/config"
	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/progress"
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("bootstrap run already in progress")

// Deps provides the configuration and control plane client for a run.
type Deps interface {
	Config() *config.Config
	ResourceClient() bootstrap.ResourceClient
}

// Runner manages bootstrap run execution.
type Runner struct {
	logger *slog.Logger
	deps   Deps
	store  StateStore
	sinks  []bootstrap.Sink

	mu        sync.Mutex
	runStatus RunStatus
	progress  *progress.Handler     // Current or last run's stage progress
	collector *logging.LogCollector // Captures logs per stage during the run
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithSink adds sinks notified by every run, e.g. metrics.
func WithSink(sinks ...bootstrap.Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, deps Deps, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger,
		deps:      deps,
		store:     NewMemoryStore(),
		runStatus: RunStatus{RunSummary: RunSummary{State: RunStateIdle}},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run validates doc and starts a bootstrap run in the background. It returns
// the ID of the run. Validation errors are returned as *document.ValidationError
// and ErrRunInProgress is returned if a run is already in progress.
func (r *Runner) Run(doc *document.Document, mode document.Mode, trigger string) (string, error) {
	if doc == nil {
		return "", errors.New("no document provided")
	}
	if err := doc.Validate(mode); err != nil {
		return "", err
	}

	cfg := r.deps.Config()
	if cfg == nil {
		return "", errors.New("no configuration available")
	}
	client := r.deps.ResourceClient()
	if client == nil {
		return "", errors.New("no platform client available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.RunTimeout)
	id, done, ok := r.tryStart(doc, mode, trigger, cancel)
	if !ok {
		cancel()
		return "", ErrRunInProgress
	}

	r.logger.Info("starting bootstrap run", "id", id.String(), "mode", mode.String(), "trigger", trigger)

	go func() {
		defer close(done)
		defer cancel()
		res, err := r.executeRun(ctx, id, cfg, client, doc, mode)
		r.finish(res, err)
	}()

	return id.String(), nil
}

// Cancel stops the run in progress, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until the run in progress, if any, has finished and been saved.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns the current run status with live stage progress and logs.
// If idle, returns the last completed run status.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.runStatus
	if status.State == RunStateRunning {
		status.Stages = r.buildStages()
	}
	return status
}

// IsRunning returns true if a bootstrap run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the history of completed runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Logs returns the stage executions of a run, including the one in progress.
func (r *Runner) Logs(id string) ([]StageExecution, error) {
	r.mu.Lock()
	if r.runStatus.State == RunStateRunning && r.runStatus.ID == id {
		stages := r.buildStages()
		r.mu.Unlock()
		return stages, nil
	}
	r.mu.Unlock()
	return r.store.Logs(id)
}

// LastResult returns the result of the last finished run, or nil.
func (r *Runner) LastResult() *bootstrap.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.Result
}

// tryStart attempts to transition from idle to running. The returned ID is
// also given to the orchestrator, so history and Result name the run alike.
func (r *Runner) tryStart(doc *document.Document, mode document.Mode, trigger string, cancel context.CancelFunc) (uuid.UUID, chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runStatus.State == RunStateRunning {
		return uuid.Nil, nil, false
	}

	now := time.Now()
	id := uuid.New()
	r.runStatus = RunStatus{
		RunSummary: RunSummary{
			ID:        id.String(),
			Trigger:   trigger,
			Mode:      mode.String(),
			Provider:  doc.Provider.Name,
			State:     RunStateRunning,
			StartedAt: &now,
		},
	}
	r.progress = progress.NewHandler(r.logger.With("run", id.String()))
	r.collector = logging.NewLogCollector()
	r.cancel = cancel
	r.done = make(chan struct{})
	return id, r.done, true
}

func (r *Runner) executeRun(ctx context.Context, id uuid.UUID, cfg *config.Config, client bootstrap.ResourceClient, doc *document.Document, mode document.Mode) (*bootstrap.Result, error) {
	r.mu.Lock()
	handler := r.progress
	collector := r.collector
	r.mu.Unlock()

	sinks := append([]bootstrap.Sink{handler}, r.sinks...)
	orch := bootstrap.NewOrchestrator(client,
		bootstrap.WithLogger(r.logger),
		bootstrap.WithSink(sinks...),
		bootstrap.WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
		bootstrap.WithConcurrency(cfg.Bootstrap.MaxConcurrency),
	)

	res, err := orch.RunWithID(ctx, id, doc, mode)
	if err != nil {
		return res, fmt.Errorf("bootstrap failed: %w", err)
	}
	return res, nil
}

// finish transitions from running to idle and records the result.
func (r *Runner) finish(res *bootstrap.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endTime := time.Now()
	duration := endTime.Sub(*r.runStatus.StartedAt)

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &endTime
	r.runStatus.Result = res
	if res != nil {
		r.runStatus.Phase = res.Phase.String()
		r.runStatus.ProviderUUID = res.ProviderUUID
		if res.FailedStage != nil {
			r.runStatus.FailedStage = res.FailedStage.String()
		}
	}

	if err != nil {
		r.runStatus.Error = err.Error()
		r.logger.Error("bootstrap run failed", "id", r.runStatus.ID, "error", err, "duration", duration)
	} else {
		r.runStatus.Error = ""
		r.logger.Info("bootstrap run completed", "id", r.runStatus.ID, "provider_uuid", r.runStatus.ProviderUUID, "duration", duration)
	}

	r.runStatus.Stages = r.buildStages()
	r.cancel = nil

	if err := r.store.Save(r.runStatus); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}

// buildStages combines stage progress and captured logs. r.mu must be held.
func (r *Runner) buildStages() []StageExecution {
	if r.progress == nil {
		return nil
	}
	var logs map[string][]logging.LogEntry
	if r.collector != nil {
		logs = r.collector.GetAllLogs()
	}

	items := r.progress.All()
	stages := make([]StageExecution, 0, len(items))
	for _, it := range items {
		stages = append(stages, StageExecution{
			Item: it,
			Logs: logs[it.Stage.String()],
		})
	}
	return stages
}
