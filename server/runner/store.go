package runner

import "errors"

// ErrRunNotFound is returned by Logs when the store has no run with the given ID.
var ErrRunNotFound = errors.New("run not found")

// StateStore manages persistence of run history.
type StateStore interface {
	// History returns the stored runs, most recent first.
	History() []RunSummary
	// Logs returns the stage executions of a run.
	Logs(id string) ([]StageExecution, error)
	// Save persists a finished run.
	Save(run RunStatus) error
}
