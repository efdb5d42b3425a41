package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nomis52/goprovision/document"
)

// TriggerName is recorded as the trigger of runs started by the scheduler.
const TriggerName = "cron"

// Runner starts a bootstrap run.
type Runner interface {
	Run(doc *document.Document, mode document.Mode, trigger string) (string, error)
}

// CronTriggerManager manages one CronTrigger per scheduled document.
type CronTriggerManager struct {
	triggers []*CronTrigger
	specs    []TriggerSpec
	logger   *slog.Logger
}

// NewCronTriggerManager creates a trigger for each spec. The document is read
// from disk every time its trigger fires so that edits to the file are picked
// up without a restart.
//
// Returns an error if any spec is missing a document or has an invalid
// cron expression.
func NewCronTriggerManager(specs []TriggerSpec, runner Runner, logger *slog.Logger) (*CronTriggerManager, error) {
	triggers := make([]*CronTrigger, 0, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}

		trigger, err := NewCronTrigger(spec.Schedule, applyDocument(spec, runner, logger), logger.With("document", spec.Document))
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s': %w", spec, err)
		}
		triggers = append(triggers, trigger)
	}

	logger.Info("cron trigger manager created", "trigger_count", len(triggers))
	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"document", specs[i].Document,
			"edit", specs[i].Edit,
			"schedule", specs[i].Schedule,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

func applyDocument(spec TriggerSpec, runner Runner, logger *slog.Logger) RunFunc {
	mode := document.Create
	if spec.Edit {
		mode = document.Edit
	}
	return func() error {
		doc, err := document.LoadFile(spec.Document)
		if err != nil {
			return err
		}
		id, err := runner.Run(doc, mode, TriggerName)
		if err != nil {
			return err
		}
		logger.Info("scheduled bootstrap started", "run_id", id, "document", spec.Document, "mode", mode)
		return nil
	}
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for i := 1; i < len(m.triggers); i++ {
		next := m.triggers[i].NextRun()
		if next.Before(earliest) {
			earliest = next
		}
	}

	return earliest
}

// Specs returns the scheduled documents.
func (m *CronTriggerManager) Specs() []TriggerSpec {
	return append([]TriggerSpec(nil), m.specs...)
}
