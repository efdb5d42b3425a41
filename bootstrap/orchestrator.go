package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/stage"
)

// DefaultConcurrency bounds the requests of one stage that run at once.
const DefaultConcurrency = 8

// Result summarises a finished run.
type Result struct {
	RunID        uuid.UUID `json:"run_id"`
	Mode         string    `json:"mode"`
	Phase        Phase     `json:"phase"`
	ProviderUUID string    `json:"provider_uuid,omitempty"`
	// KeyFingerprint is the SHA256 fingerprint of the uploaded access key.
	KeyFingerprint string            `json:"key_fingerprint,omitempty"`
	Stages         []stage.Entry     `json:"stages"`
	Regions        map[string]string `json:"regions,omitempty"`
	Zones          map[string]string `json:"zones,omitempty"`
	Skipped        []stage.Type      `json:"skipped,omitempty"`
	FailedStage    *stage.Type       `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	Failures       []Failure         `json:"failures,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// Succeeded returns true if the run reached Done.
func (r *Result) Succeeded() bool {
	return r.Phase == PhaseDone
}

// Orchestrator runs bootstrap runs against a ResourceClient.
type Orchestrator struct {
	client      ResourceClient
	logger      *slog.Logger
	sinks       []Sink
	hook        logging.LoggerHook
	concurrency int

	mu      sync.Mutex
	current uuid.UUID
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "bootstrap")
	}
}

// WithSink adds sinks that are notified of stage changes and the outcome.
func WithSink(sinks ...Sink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithLoggerHook wraps the logger used for each stage's requests, so that
// per-stage logs can be captured.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(o *Orchestrator) {
		o.hook = hook
	}
}

// WithConcurrency bounds the number of concurrent requests. Values below 1
// leave the default in place.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// NewOrchestrator creates an orchestrator that issues requests through client.
func NewOrchestrator(client ResourceClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		logger:      slog.Default().With("component", "bootstrap"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run provisions doc and blocks until the run is Done or Failed.
//
// Starting a run cancels the context of any run still in progress on the
// same Orchestrator. When a stage fails Run waits for its in-flight siblings,
// then returns the partial Result together with a *StageError. Validation
// errors are returned before any request is made, with a nil Result.
func (o *Orchestrator) Run(ctx context.Context, doc *document.Document, mode document.Mode) (*Result, error) {
	return o.RunWithID(ctx, uuid.New(), doc, mode)
}

// RunWithID is Run for a run whose identifier was assigned by the caller,
// e.g. the history key of the server runner.
func (o *Orchestrator) RunWithID(ctx context.Context, id uuid.UUID, doc *document.Document, mode document.Mode) (*Result, error) {
	startedAt := time.Now()
	rs, tr, err := StartWithID(id, doc, mode)
	if err != nil {
		o.logger.Error("bootstrap document rejected", "mode", mode.String(), "error", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.supersede(rs.ID, cancel)
	defer o.release(rs.ID)

	logger := o.logger.With("run_id", rs.ID.String(), "mode", mode.String())
	logger.Info("starting bootstrap run", "requests", rs.plan.Total())
	if rs.plan.Noop {
		logger.Info("no instance types or regions are flagged for edit, nothing to do")
	}

	d := &driver{
		o:       o,
		rs:      rs,
		logger:  logger,
		events:  make(chan Event, rs.plan.Total()),
		loggers: make(map[stage.Type]*slog.Logger),
	}
	d.group.SetLimit(o.concurrency)

	d.handleTransition(ctx, tr)
	for d.inflight > 0 {
		ev := <-d.events
		d.inflight--
		d.handleEvent(ctx, ev)
	}
	// Every task has sent its event, so Wait only reaps the goroutines.
	_ = d.group.Wait()

	return o.finish(logger, rs, startedAt)
}

func (o *Orchestrator) supersede(id uuid.UUID, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.logger.Warn("superseding bootstrap run", "previous_run_id", o.current.String(), "run_id", id.String())
		o.cancel()
	}
	o.current = id
	o.cancel = cancel
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == id {
		o.current = uuid.Nil
		o.cancel = nil
	}
}

func (o *Orchestrator) finish(logger *slog.Logger, rs *RunState, startedAt time.Time) (*Result, error) {
	res := &Result{
		RunID:        rs.ID,
		Mode:         rs.Mode.String(),
		Phase:        rs.Phase(),
		ProviderUUID: rs.ProviderUUID(),
		Stages:       rs.Stages(),
		Regions:      rs.Regions(),
		Zones:        rs.Zones(),
		Skipped:      rs.Skipped(),
		Failures:     rs.Failures(),
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}
	if k := rs.plan.Key; k != nil && rs.IsStageComplete(stage.AccessKey) && rs.plan.Expected(stage.AccessKey) > 0 {
		res.KeyFingerprint, _ = document.KeyFingerprint(k)
	}
	duration := res.FinishedAt.Sub(startedAt)

	switch rs.Phase() {
	case PhaseDone:
		logger.Info("bootstrap run completed", "provider_uuid", res.ProviderUUID, "skipped", len(res.Skipped), "duration", duration)
		for _, s := range o.sinks {
			s.OnComplete(res.ProviderUUID)
		}
		return res, nil

	case PhaseFailed:
		failed, _ := rs.FailedStage()
		res.FailedStage = &failed
		res.Error = rs.Err().Error()
		logger.Error("bootstrap run failed", "stage", failed.String(), "error", rs.Err(), "failures", len(res.Failures), "duration", duration)
		for _, s := range o.sinks {
			s.OnFailed(failed, rs.Err())
		}
		return res, &StageError{Stage: failed, Err: rs.Err()}
	}

	err := fmt.Errorf("bootstrap run stalled in phase %s", rs.Phase())
	res.Error = err.Error()
	logger.Error("bootstrap run stalled", "phase", rs.Phase().String())
	return res, err
}

// driver holds the per-run loop state. It is only used from the goroutine
// that called Run.
type driver struct {
	o        *Orchestrator
	rs       *RunState
	logger   *slog.Logger
	loggers  map[stage.Type]*slog.Logger
	events   chan Event
	group    errgroup.Group
	inflight int
}

// stageLogger returns the logger for t, created before any request of t is
// issued so tasks only read the map.
func (d *driver) stageLogger(t stage.Type) *slog.Logger {
	if l, ok := d.loggers[t]; ok {
		return l
	}
	l := d.logger
	if d.o.hook != nil {
		l = d.o.hook.LoggerForStage(d.logger, t.String())
	}
	d.loggers[t] = l
	return l
}

func (d *driver) handleEvent(ctx context.Context, ev Event) {
	tr, err := d.rs.Apply(ev)
	if err != nil {
		if errors.Is(err, ErrStaleEvent) {
			d.logger.Warn("discarding stale event", "stage", ev.Stage.String(), "key", ev.Key)
			return
		}
		// A result that cannot be recorded fails its stage.
		d.logger.Error("rejected result", "stage", ev.Stage.String(), "key", ev.Key, "error", err)
		tr, err = d.rs.Apply(Event{RunID: ev.RunID, Stage: ev.Stage, Key: ev.Key, Err: fmt.Errorf("rejected result: %w", err)})
		if err != nil {
			d.logger.Error("failed to record rejected result", "stage", ev.Stage.String(), "error", err)
			return
		}
	} else if ev.Err == nil {
		d.progress(ev)
	}
	d.handleTransition(ctx, tr)
}

func (d *driver) progress(ev Event) {
	done, total := d.rs.Progress(ev.Stage)
	d.stageLogger(ev.Stage).Debug("stage progress", "stage", ev.Stage.String(), "item", ev.Key, "done", done, "total", total)
	for _, s := range d.o.sinks {
		if ps, ok := s.(ProgressSink); ok {
			ps.OnProgress(ev.Stage, done, total, ev.Key)
		}
	}
}

func (d *driver) handleTransition(ctx context.Context, tr Transition) {
	for _, c := range tr.Changes {
		d.logger.Info("stage status changed", "stage", c.Type.String(), "status", c.Status.String())
		for _, s := range d.o.sinks {
			s.OnStageStatus(c.Type, c.Status)
		}
	}
	for _, t := range tr.Skipped {
		d.logger.Info("skipping stage with no work", "stage", t.String())
	}
	if tr.ShouldLaunch {
		d.launch(ctx, tr.Launch)
	}
}

func (d *driver) launch(ctx context.Context, t stage.Type) {
	logger := d.stageLogger(t)
	reqs, err := d.rs.Requests(t)
	if err != nil {
		logger.Error("failed to build requests", "stage", t.String(), "error", err)
		tr, applyErr := d.rs.Apply(Event{RunID: d.rs.ID, Stage: t, Err: err})
		if applyErr != nil {
			d.logger.Error("failed to record request error", "stage", t.String(), "error", applyErr)
			return
		}
		d.handleTransition(ctx, tr)
		return
	}

	logger.Info("launching stage", "stage", t.String(), "requests", len(reqs))
	for _, req := range reqs {
		if req.AccessKey != nil {
			logAccessKey(logger, req.AccessKey)
		}
		d.inflight++
		d.group.Go(func() error {
			d.events <- d.do(ctx, logger, req)
			return nil
		})
	}
}

func logAccessKey(logger *slog.Logger, k *document.AccessKey) {
	fp, err := document.KeyFingerprint(k)
	if err != nil {
		logger.Warn("cannot fingerprint access key", "key", k.Code, "error", err)
		return
	}
	logger.Info("uploading access key", "key", k.Code, "ssh_user", k.SSHUser, "fingerprint", fp)
}

func (d *driver) do(ctx context.Context, logger *slog.Logger, req Request) Event {
	ev := Event{RunID: d.rs.ID, Stage: req.Stage, Key: req.Key}
	if err := ctx.Err(); err != nil {
		ev.Err = err
		return ev
	}

	start := time.Now()
	id, err := req.Do(ctx, d.o.client)
	elapsed := time.Since(start)
	for _, s := range d.o.sinks {
		if obs, ok := s.(RequestObserver); ok {
			obs.ObserveRequest(req.Stage, elapsed, err)
		}
	}

	if err != nil {
		logger.Warn("request failed", "stage", req.Stage.String(), "key", req.Key, "error", err, "duration", elapsed)
		ev.Err = err
		return ev
	}
	logger.Debug("request succeeded", "stage", req.Stage.String(), "key", req.Key, "id", id, "duration", elapsed)
	ev.UUID = id
	return ev
}
