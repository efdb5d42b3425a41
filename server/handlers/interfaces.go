// Package handlers provides HTTP handlers for the provisioning server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/config"
	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/server/runner"
	"github.com/nomis52/goprovision/server/types"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// BootstrapRunner can start bootstrap runs.
type BootstrapRunner interface {
	Run(doc *document.Document, mode document.Mode, trigger string) (string, error)
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunSummary
	Logs(id string) ([]runner.StageExecution, error)
}

// ResultProvider provides access to the result of the last finished run.
type ResultProvider interface {
	LastResult() *bootstrap.Result
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Status() runner.RunStatus
	NextRun() *time.Time
}
