package logging

import (
	"context"
	"log/slog"
	"strings"
)

// componentLevelHandler enforces a per-component minimum level while
// delegating output to the wrapped handler (which should be configured with
// the most verbose level needed globally). The component is learned from the
// attributes bound with NewComponentLogger.
type componentLevelHandler struct {
	next      slog.Handler
	base      slog.Level
	level     slog.Level
	overrides map[string]slog.Level
}

func newComponentLevelHandler(next slog.Handler, base slog.Level, overrides map[string]slog.Level) slog.Handler {
	if next == nil {
		return discardHandler{}
	}
	return &componentLevelHandler{next: next, base: base, level: base, overrides: overrides}
}

func (h *componentLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *componentLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *componentLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(attr.Value.String()))
		if override, ok := h.overrides[name]; ok {
			level = override
		} else {
			level = h.base
		}
	}
	return &componentLevelHandler{
		next:      h.next.WithAttrs(attrs),
		base:      h.base,
		level:     level,
		overrides: h.overrides,
	}
}

func (h *componentLevelHandler) WithGroup(name string) slog.Handler {
	return &componentLevelHandler{
		next:      h.next.WithGroup(name),
		base:      h.base,
		level:     h.level,
		overrides: h.overrides,
	}
}

type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithGroup(name), level: h.level}
}

// WithLevelOverride returns a logger that enforces the provided minimum level
// while preserving existing attributes and handler wiring.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return slog.New(&levelOverrideHandler{next: logger.Handler(), level: level})
}
