package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CapturingHandler copies every record into a LogCollector under one scope,
// usually a stage name, and passes it on to the underlying handler.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	scope      string
	// attrs holds the WithAttrs attributes with group-qualified keys.
	attrs  []slog.Attr
	groups []string
}

// NewCapturingHandler creates a new CapturingHandler that captures logs to the collector
// under scope while passing them through to the underlying handler.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, scope string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		scope:      scope,
	}
}

// Enabled always returns true so that debug records are captured even when
// the underlying handler filters them. Handle still applies the underlying
// handler's level before writing.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the log record and then passes it to the underlying handler.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}

	for _, attr := range h.attrs {
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}

	// Record attributes belong to the innermost group.
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[h.qualify(a.Key)] = resolveValue(a.Value)
		return true
	})

	h.collector.AddLog(h.scope, entry)

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a new CapturingHandler with additional attributes.
// It must return a CapturingHandler, not the underlying handler, or
// capturing stops after the first .With() call.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		scope:      h.scope,
		attrs:      newAttrs,
		groups:     h.groups,
	}
}

// WithGroup returns a new CapturingHandler with a group name.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		scope:      h.scope,
		attrs:      h.attrs,
		groups:     newGroups,
	}
}

// qualify prefixes key with the open groups, joined by dots.
func (h *CapturingHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// resolveValue converts v to a value encoding/json can write. Errors become
// their message and groups become nested maps.
func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
