// Package config holds the settings of the provisioning server process.
// The platform settings used by each run live in a separate file, see
// ServerConfig.ProvisionConfig.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/server/cron"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	// Documents to apply on a schedule
	Cron []cron.TriggerSpec `yaml:"cron"`
	// The directory used to store run history; history is kept in memory when empty
	StateDir string `yaml:"state_dir"`
	// Number of runs kept in the history
	HistorySize int    `yaml:"history_size"`
	LogLevel    string `yaml:"log_level"`
	// The path to the provisioning config file
	ProvisionConfig string `yaml:"provision_config"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLS is enabled when both are set. The files are re-read when they change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled reports whether the listener serves HTTPS.
func (l ListenerConfig) TLSEnabled() bool {
	return l.TLSCert != "" && l.TLSKey != ""
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = ":8080"
	}
	if c.HistorySize == 0 {
		c.HistorySize = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.ProvisionConfig == "" {
		return errors.New("provision_config is required")
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return errors.New("listener tls_cert and tls_key must be set together")
	}
	if c.HistorySize < 0 {
		return errors.New("history_size must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	for i, spec := range c.Cron {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("cron entry %d: %w", i, err)
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *ServerConfig) SlogLevel() (slog.Level, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("invalid log_level: %w", err)
	}
	return level, nil
}
