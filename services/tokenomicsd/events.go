package main

import (
	"log/slog"

	"gravitywell/core/events"
)

// eventLogger writes every committed engine event to the structured log.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{"type", evt.EventType()}
	if r, ok := evt.(events.Renderable); ok {
		if rendered := r.Event(); rendered != nil {
			for _, k := range rendered.Keys() {
				attrs = append(attrs, k, rendered.Attributes[k])
			}
		}
	}
	l.logger.Info("engine event", attrs...)
}
