// Package logging builds the slog loggers used by goprovision and captures
// the records emitted while a bootstrap stage runs, so they can be shown next
// to the stage table once the run is over.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	logger.Component("orchestrator").Info("stage launched", "stage", "region", "requests", 2)
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	FormatJSON = "json"
	FormatText = "text"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path. Files are appended to.
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
	// Writer overrides Output when set.
	Writer io.Writer `yaml:"-"`
}

// Logger is a slog.Logger that owns its output.
type Logger struct {
	*slog.Logger
	level  slog.Level
	closer io.Closer
}

// New creates a logger from cfg. Unset fields fall back to info, json and
// stdout.
func New(cfg Config) (*Logger, error) {
	cfg = cfg.withDefaults()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	w, closer := cfg.Writer, io.Closer(nil)
	if w == nil {
		w, closer, err = openOutput(cfg.Output)
		if err != nil {
			return nil, err
		}
	}

	handler, err := newHandler(cfg.Format, w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTimestamps,
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return &Logger{Logger: slog.New(handler), level: level, closer: closer}, nil
}

// Level returns the minimum level records must have to be written.
func (l *Logger) Level() slog.Level {
	return l.level
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

// Close releases the log file, if the logger opened one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel converts debug, info, warn or error (in any case) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q, want debug, info, warn or error", s)
}

func (cfg Config) withDefaults() Config {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Output == "" {
		cfg.Output = OutputStdout
	}
	return cfg
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	case FormatText:
		return slog.NewTextHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format %q, want json or text", format)
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case OutputStdout:
		return os.Stdout, nil, nil
	case OutputStderr:
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("log directory for %q does not exist: %w", output, err)
		}
		return nil, nil, fmt.Errorf("failed to open log file %q: %w", output, err)
	}
	return f, f, nil
}

// utcTimestamps writes record times in UTC so runs logged by the server and
// the CLI line up.
func utcTimestamps(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
	}
	return a
}
