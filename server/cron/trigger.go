// Package cron schedules bootstrap runs.
//
// A CronTrigger calls a RunFunc according to a cron schedule. A
// CronTriggerManager owns one trigger per configured document and feeds the
// loaded document to the runner each time its schedule fires.
//
// Example usage:
//
//	trigger, err := cron.NewCronTrigger("0 2 * * *", run, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// RunFunc is called each time a trigger fires.
type RunFunc func() error

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronTrigger executes a RunFunc according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	run      RunFunc
	logger   *slog.Logger
}

// NewCronTrigger creates a new CronTrigger with the given cron specification.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec string, run RunFunc, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		run:      run,
		logger:   logger,
	}, nil
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.schedule.Next(time.Now())
		waitDuration := time.Until(nextRun)

		ct.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", waitDuration,
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			ct.fire()
		}
	}
}

func (ct *CronTrigger) fire() {
	ct.logger.Info("starting scheduled run", "schedule", ct.spec)

	if err := ct.run(); err != nil {
		ct.logger.Warn("scheduled run could not be started", "error", err)
	} else {
		ct.logger.Info("scheduled run started")
	}
}
