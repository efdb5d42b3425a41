package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/goprovision/logging"
)

const (
	// Default platform settings
	defaultPlatformTimeout = 30 * time.Second

	// Default bootstrap settings
	defaultMaxConcurrency = 8
	defaultRunTimeout     = 30 * time.Minute

	// Default monitoring settings
	defaultMetricsPrefix = "goprovision"
	defaultJobName       = "goprovision"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	redactedValue = "<redacted>"
)

// Config represents the complete application configuration
type Config struct {
	Platform   PlatformConfig   `yaml:"platform"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PlatformConfig holds the control plane API connection settings
type PlatformConfig struct {
	// URL is the base URL of the control plane, e.g. https://platform.example.com
	URL string `yaml:"url"`

	// APIToken is sent with every request
	APIToken string `yaml:"api_token"`

	// CustomerUUID scopes every route
	CustomerUUID string `yaml:"customer_uuid"`

	// Timeout bounds each HTTP request
	Timeout time.Duration `yaml:"timeout"`
}

// BootstrapConfig tunes how runs are executed
type BootstrapConfig struct {
	// MaxConcurrency bounds the requests of one stage that run at once
	MaxConcurrency int `yaml:"max_concurrency"`

	// RunTimeout bounds a whole run
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// MonitoringConfig holds metrics and monitoring settings. Metrics are only
// pushed when VictoriaMetricsURL is set.
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Logger converts the settings into a logging.Config.
func (c LoggingConfig) Logger() logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		Output:    c.Output,
		AddSource: c.AddSource,
	}
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Platform.URL == "" {
		return fmt.Errorf("platform url is required")
	}
	u, err := url.Parse(c.Platform.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("platform url %q must be an absolute URL", c.Platform.URL)
	}
	if c.Platform.APIToken == "" {
		return fmt.Errorf("platform api_token is required")
	}
	if c.Platform.CustomerUUID == "" {
		return fmt.Errorf("platform customer_uuid is required")
	}
	if c.Platform.Timeout <= 0 {
		return fmt.Errorf("platform timeout must be positive")
	}
	if c.Bootstrap.MaxConcurrency <= 0 {
		return fmt.Errorf("bootstrap max_concurrency must be positive")
	}
	if c.Bootstrap.RunTimeout <= 0 {
		return fmt.Errorf("bootstrap run_timeout must be positive")
	}
	if c.Monitoring.VictoriaMetricsURL != "" {
		if _, err := url.Parse(c.Monitoring.VictoriaMetricsURL); err != nil {
			return fmt.Errorf("invalid victoriametrics_url: %w", err)
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = defaultPlatformTimeout
	}
	if c.Bootstrap.MaxConcurrency == 0 {
		c.Bootstrap.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Bootstrap.RunTimeout == 0 {
		c.Bootstrap.RunTimeout = defaultRunTimeout
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// Redacted returns a copy of the configuration with secrets replaced.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Platform.APIToken != "" {
		out.Platform.APIToken = redactedValue
	}
	return &out
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
