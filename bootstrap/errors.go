package bootstrap

import (
	"errors"
	"fmt"

	"github.com/nomis52/goprovision/stage"
)

var (
	// ErrNotStarted is returned by Apply on a RunState that was not created by Start.
	ErrNotStarted = errors.New("bootstrap run has not been started")
	// ErrStaleEvent is returned for events that belong to another run.
	ErrStaleEvent = errors.New("event belongs to a different run")
	// ErrRunFinished is returned for events that arrive after the run reached Done.
	ErrRunFinished = errors.New("bootstrap run already finished")
	// ErrUnexpectedStage is returned for events of a stage that is not running.
	ErrUnexpectedStage = errors.New("event for a stage that is not running")
	// ErrDuplicateResult is returned when a keyed stage receives the same key twice.
	ErrDuplicateResult = errors.New("duplicate result")
	// ErrUnexpectedResult is returned when a stage receives more results than it expects.
	ErrUnexpectedResult = errors.New("more results than expected")
)

// StageError reports the stage that stopped a run and the first error it saw.
type StageError struct {
	Stage stage.Type
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
