package runner

import (
	"io"
	"log/slog"
	"time"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/config"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/progress"
	"github.com/nomis52/goprovision/stage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sampleRun builds a finished run that started at start.
func sampleRun(id string, start time.Time) RunStatus {
	end := start.Add(time.Minute)
	return RunStatus{
		RunSummary: RunSummary{
			ID:           id,
			Trigger:      "api",
			Mode:         "create",
			Provider:     "dc1",
			State:        RunStateIdle,
			Phase:        "done",
			StartedAt:    &start,
			EndedAt:      &end,
			ProviderUUID: "prov-dc1",
		},
		Stages: []StageExecution{
			{
				Item: progress.Item{Stage: stage.Region, Name: stage.Region.Label(), Status: stage.Success, Done: 1, Total: 1},
				Logs: []logging.LogEntry{{Time: start, Level: "INFO", Message: "launching stage", Attributes: map[string]any{"requests": float64(1)}}},
			},
		},
		Result: &bootstrap.Result{Phase: bootstrap.PhaseDone, ProviderUUID: "prov-dc1"},
	}
}

type fakeDeps struct {
	cfg    *config.Config
	client bootstrap.ResourceClient
}

func (d *fakeDeps) Config() *config.Config                   { return d.cfg }
func (d *fakeDeps) ResourceClient() bootstrap.ResourceClient { return d.client }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}
