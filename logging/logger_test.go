package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "json to stdout", config: Config{Level: "info", Format: "json", Output: "stdout"}},
		{name: "text to stderr", config: Config{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "defaults", config: Config{}},
		{name: "unknown level", config: Config{Level: "trace"}, wantErr: `unknown log level "trace"`},
		{name: "unknown format", config: Config{Format: "xml"}, wantErr: `unknown log format "xml"`},
		{name: "missing log directory", config: Config{Output: filepath.Join(t.TempDir(), "missing", "run.log")}, wantErr: "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "warning", want: slog.LevelWarn},
		{level: "ERROR", want: slog.LevelError},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Writer(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "text", Writer: &buf})
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, logger.Level())

	logger.Component("orchestrator").Debug("zone created", "zone", "us-west/az1")
	assert.Contains(t, buf.String(), "zone created")
	assert.Contains(t, buf.String(), "component=orchestrator")
	assert.Contains(t, buf.String(), "zone=us-west/az1")
	assert.Regexp(t, `time=\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, buf.String())
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("stage launched")
	assert.Empty(t, buf.String())
	logger.Warn("request retried")
	assert.Contains(t, buf.String(), `"msg":"request retried"`)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goprovision.log")
	logger, err := New(Config{Output: path})
	require.NoError(t, err)

	logger.Info("run finished", "phase", "done")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"run finished"`)
	assert.Contains(t, string(data), `"phase":"done"`)
}
