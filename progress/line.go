package progress

import (
	"log/slog"

	"github.com/nomis52/goprovision/stage"
)

// Line logs status with stage context and updates the shared handler.
type Line struct {
	logger  *slog.Logger
	handler *Handler
	stage   stage.Type
}

// NewLine creates a status line bound to stage t.
// The handler parameter is optional; if nil, status updates are only logged.
func NewLine(t stage.Type, logger *slog.Logger, handler *Handler) *Line {
	return &Line{
		logger:  logger,
		handler: handler,
		stage:   t,
	}
}

// Set logs the status with stage context and updates the handler if present.
func (l *Line) Set(status string) {
	l.logger.Info(status, "stage", l.stage.String())
	if l.handler != nil {
		l.handler.Set(l.stage, status)
	}
}

// CaptureError runs f and, if it fails, sets the error as the line's status.
func CaptureError(line *Line, f func() error) error {
	err := f()
	if err != nil && line != nil {
		line.Set("❌ " + err.Error())
	}
	return err
}
