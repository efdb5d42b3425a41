package progress

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/stage"
)

var (
	_ bootstrap.Sink         = (*Handler)(nil)
	_ bootstrap.ProgressSink = (*Handler)(nil)
)

// Item is one row of the progress list.
type Item struct {
	Stage   stage.Type   `json:"stage"`
	Name    string       `json:"name"`
	Status  stage.Status `json:"status"`
	Done    int          `json:"done"`
	Total   int          `json:"total"`
	Message string       `json:"message,omitempty"`
}

// Summary is a snapshot of a run's progress and outcome.
type Summary struct {
	Items        []Item      `json:"items"`
	Finished     bool        `json:"finished"`
	ProviderUUID string      `json:"provider_uuid,omitempty"`
	FailedStage  *stage.Type `json:"failed_stage,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Handler stores the progress of every stage. It is safe for concurrent use.
type Handler struct {
	logger *slog.Logger

	mu           sync.RWMutex
	items        map[stage.Type]*Item
	finished     bool
	providerUUID string
	failedStage  *stage.Type
	err          string
}

// NewHandler creates a handler with every stage Initializing.
func NewHandler(logger *slog.Logger) *Handler {
	h := &Handler{logger: logger}
	h.Reset()
	return h
}

// Reset clears all progress.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = make(map[stage.Type]*Item, len(stage.All()))
	for _, t := range stage.All() {
		h.items[t] = &Item{Stage: t, Name: t.Label(), Status: stage.Initializing}
	}
	h.finished = false
	h.providerUUID = ""
	h.failedStage = nil
	h.err = ""
}

// Line returns a status line bound to stage t.
func (h *Handler) Line(t stage.Type) *Line {
	return NewLine(t, h.logger, h)
}

// Set updates the message of stage t. It is called by Line.
func (h *Handler) Set(t stage.Type, message string) {
	h.update(t, func(it *Item) { it.Message = message })
}

// Get returns the progress of stage t.
func (h *Handler) Get(t stage.Type) Item {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if it, ok := h.items[t]; ok {
		return *it
	}
	return Item{Stage: t, Name: t.Label()}
}

// All returns a copy of every item in stage order.
func (h *Handler) All() []Item {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Item, 0, len(h.items))
	for _, t := range stage.All() {
		out = append(out, *h.items[t])
	}
	return out
}

// Summary returns the items together with the run outcome.
func (h *Handler) Summary() Summary {
	items := h.All()
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Summary{
		Items:        items,
		Finished:     h.finished,
		ProviderUUID: h.providerUUID,
		Error:        h.err,
	}
	if h.failedStage != nil {
		failed := *h.failedStage
		s.FailedStage = &failed
	}
	return s
}

// OnStageStatus implements bootstrap.Sink.
func (h *Handler) OnStageStatus(t stage.Type, s stage.Status) {
	var total int
	h.update(t, func(it *Item) {
		it.Status = s
		total = it.Total
	})

	switch s {
	case stage.Running:
		h.Line(t).Set("running")
	case stage.Success:
		if total == 0 {
			h.Line(t).Set("skipped, nothing to do")
		} else {
			h.Line(t).Set(fmt.Sprintf("done, %d created", total))
		}
	}
}

// OnProgress implements bootstrap.ProgressSink.
func (h *Handler) OnProgress(t stage.Type, done, total int, item string) {
	h.update(t, func(it *Item) {
		it.Done = done
		it.Total = total
		it.Message = fmt.Sprintf("created %s (%d/%d)", item, done, total)
	})
}

// OnComplete implements bootstrap.Sink.
func (h *Handler) OnComplete(providerUUID string) {
	h.mu.Lock()
	h.finished = true
	h.providerUUID = providerUUID
	h.mu.Unlock()
	h.logger.Info("bootstrap complete", "provider_uuid", providerUUID)
}

// OnFailed implements bootstrap.Sink.
func (h *Handler) OnFailed(t stage.Type, err error) {
	h.mu.Lock()
	h.finished = true
	h.failedStage = &t
	h.err = err.Error()
	h.mu.Unlock()
	CaptureError(h.Line(t), func() error { return err })
}

func (h *Handler) update(t stage.Type, f func(*Item)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if it, ok := h.items[t]; ok {
		f(it)
	}
}
