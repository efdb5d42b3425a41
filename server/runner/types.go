package runner

import (
	"time"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/progress"
)

// RunState represents the current state of the runner.
type RunState int

const (
	// RunStateIdle indicates no bootstrap is running.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a bootstrap is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"running"`:
		*s = RunStateRunning
	default:
		*s = RunStateIdle
	}
	return nil
}

// RunSummary describes one bootstrap run without its logs.
type RunSummary struct {
	// ID identifies the run in the history.
	ID string `json:"id"`
	// Trigger names what started the run, e.g. "api" or "cron".
	Trigger string `json:"trigger"`
	// Mode is "create" or "edit".
	Mode string `json:"mode"`
	// Provider is the provider name from the document.
	Provider string `json:"provider"`
	// State is the runner state while the run is live.
	State RunState `json:"state"`
	// Phase is the bootstrap phase the run ended in.
	Phase string `json:"phase,omitempty"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil if run is in progress or no run has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// ProviderUUID is set once the provider stage succeeded.
	ProviderUUID string `json:"provider_uuid,omitempty"`
	// FailedStage names the stage that failed, if any.
	FailedStage string `json:"failed_stage,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
}

// StageExecution is the progress of one stage plus the logs it captured.
type StageExecution struct {
	progress.Item
	Logs []logging.LogEntry `json:"logs,omitempty"`
}

// RunStatus contains information about the current or last run.
type RunStatus struct {
	RunSummary
	Stages []StageExecution  `json:"stages,omitempty"`
	Result *bootstrap.Result `json:"result,omitempty"`
}

// runRecord is the persisted form of a finished run.
type runRecord struct {
	RunSummary
	Stages []StageExecution  `json:"stages"`
	Result *bootstrap.Result `json:"result,omitempty"`
}
