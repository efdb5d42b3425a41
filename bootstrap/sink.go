package bootstrap

import (
	"time"

	"github.com/nomis52/goprovision/stage"
)

// Sink receives the outcome of a run. Calls are made from the driver
// goroutine in the order the changes happen.
type Sink interface {
	// OnStageStatus is called for every change of the stage table.
	OnStageStatus(t stage.Type, s stage.Status)
	// OnComplete is called once when the run reaches Done.
	OnComplete(providerUUID string)
	// OnFailed is called once when the run stops at a failed stage.
	OnFailed(t stage.Type, err error)
}

// ProgressSink is implemented by sinks that want per-item progress.
type ProgressSink interface {
	OnProgress(t stage.Type, done, total int, item string)
}

// RequestObserver is implemented by sinks that record individual requests.
// ObserveRequest is called from the worker goroutines and must be safe for
// concurrent use.
type RequestObserver interface {
	ObserveRequest(t stage.Type, d time.Duration, err error)
}
