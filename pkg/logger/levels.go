package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// componentLevels replaces the base level for loggers tagged with a component
// that has an override, e.g. debug output for "devhost.server" only.
type componentLevels struct {
	next      slog.Handler
	base      slog.Level
	overrides map[string]slog.Level
	level     slog.Level
}

func newComponentLevels(next slog.Handler, base slog.Level, overrides map[string]slog.Level) *componentLevels {
	return &componentLevels{next: next, base: base, overrides: overrides, level: base}
}

func (h *componentLevels) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *componentLevels) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}

	return h.next.Handle(ctx, record)
}

func (h *componentLevels) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.next = h.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key != componentKey {
			continue
		}

		next.level = h.base
		if level, ok := h.overrides[attr.Value.Resolve().String()]; ok {
			next.level = level
		}
	}

	return &next
}

func (h *componentLevels) WithGroup(name string) slog.Handler {
	next := *h
	next.next = h.next.WithGroup(name)
	return &next
}

// parseComponentLevels merges configured overrides with
// HOSTBRIDGE_LOG_COMPONENTS ("devhost.server=debug,bridge.manager=warn").
// Environment entries win.
func parseComponentLevels(configured map[string]string) (map[string]slog.Level, error) {
	specs := make(map[string]string, len(configured))
	for name, level := range configured {
		specs[strings.TrimSpace(name)] = level
	}

	if value := strings.TrimSpace(os.Getenv(envLogComponents)); value != "" {
		for _, pair := range strings.Split(value, ",") {
			if strings.TrimSpace(pair) == "" {
				continue
			}

			name, level, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("%s entry %q is not component=level", envLogComponents, pair)
			}
			specs[strings.TrimSpace(name)] = level
		}
	}

	levels := make(map[string]slog.Level, len(specs))
	for name, text := range specs {
		if name == "" {
			return nil, fmt.Errorf("component level %q has no component name", text)
		}

		level, err := levelFromText(text)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", name, err)
		}
		levels[name] = level
	}

	return levels, nil
}
