// Package types provides shared types for the server package and its subpackages.
package types

import (
	"time"

	"github.com/nomis52/goprovision/buildinfo"
)

// ServerProperties holds metadata about the running server instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
	// ConfigPath is the provisioning config the server reloads from.
	ConfigPath string `json:"config_path"`
	// Scheduled is the number of documents applied on a cron schedule.
	Scheduled int `json:"scheduled"`
}
