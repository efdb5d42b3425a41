package logging

import (
	"log/slog"
)

// LoggerHook creates stage-specific loggers by wrapping a base logger.
// The bootstrap orchestrator stays unaware of where records end up.
type LoggerHook interface {
	// LoggerForStage wraps baseLogger for the named stage.
	LoggerForStage(baseLogger *slog.Logger, stage string) *slog.Logger
}

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures every stage's logs into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// Collector returns the collector the hook writes to.
func (p *CapturingLoggerHook) Collector() *LogCollector {
	return p.collector
}

// LoggerForStage returns a logger whose records are stored under stage.
func (p *CapturingLoggerHook) LoggerForStage(baseLogger *slog.Logger, stage string) *slog.Logger {
	capturingHandler := NewCapturingHandler(
		baseLogger.Handler(),
		p.collector,
		stage,
	)
	return slog.New(capturingHandler)
}
