package agent

import (
	"context"
	"log/slog"
	"time"

	"themeforge/pkg/bus"
)

// ObserveEvents logs generation lifecycle events until ctx ends or the bus
// closes.
func ObserveEvents(ctx context.Context, eventBus *bus.Bus) {
	log := slog.Default().With("component", "bus.events")
	events, unsubscribe := eventBus.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"request_id", event.RequestID,
		"message_id", event.MessageID,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventGenerationFailed:
		log.Error("Generation event", append(attrs, "error", event.Error)...)
	case bus.EventGenerationStarted, bus.EventGenerationCompleted, bus.EventGenerationCancelled:
		log.Info("Generation event", attrs...)
	default:
		log.Debug("Generation event", attrs...)
	}
}
