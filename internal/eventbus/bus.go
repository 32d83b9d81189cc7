// Package eventbus implements the event bus collaborator (spec §6): an
// optional emit(event_name, payload) sink for lifecycle events (trips,
// recoveries, orphan healing, migrations). Failures to emit must never
// propagate to the caller (spec §7).
//
// The default implementation fans out to the zap logger and a
// gorilla/websocket hub so a live dashboard can tail fleet activity,
// following the broadcast shape of the teacher's
// server/internal/websocket package — collapsed from per-entity topics to
// a single fleet-wide event stream, since this domain has one audience
// (the fleet operator) rather than per-job/per-agent GUI subscribers.
package eventbus

import (
	"time"

	"go.uber.org/zap"
)

// Event is a single fleet lifecycle event.
type Event struct {
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus is the event bus collaborator. Emit must never block the caller
// indefinitely and must never surface an error — spec §7 requires that
// "event emission failures MUST NOT abort the operation that tried to
// emit."
type Bus interface {
	Emit(name string, payload map[string]any)
}

// severeEvents log at warn instead of info — the trip/error/degradation
// side of the lifecycle rather than routine recoveries and migrations.
var severeEvents = map[string]bool{
	"circuit_tripped":  true,
	"host_marked_error": true,
}

// LoggingBus fans every event out to a zap logger and, if set, a Hub for
// live dashboard consumption. Safe for concurrent use.
type LoggingBus struct {
	logger *zap.Logger
	hub    *Hub
}

// New constructs a LoggingBus. hub may be nil if no dashboard is wired.
func New(logger *zap.Logger, hub *Hub) *LoggingBus {
	return &LoggingBus{logger: logger.Named("eventbus"), hub: hub}
}

// Emit logs the event and, if a hub is wired, publishes it to connected
// dashboard clients. Never returns an error and never panics on a slow or
// disconnected client — Publish itself is non-blocking per Hub's design.
func (b *LoggingBus) Emit(name string, payload map[string]any) {
	defer func() {
		// A malformed payload (e.g. a non-marshalable value) must not take
		// down the caller's operation.
		_ = recover()
	}()

	fields := make([]zap.Field, 0, len(payload)+1)
	fields = append(fields, zap.String("event", name))
	for k, v := range payload {
		fields = append(fields, zap.Any(k, v))
	}

	if severeEvents[name] {
		b.logger.Warn("fleet event", fields...)
	} else {
		b.logger.Info("fleet event", fields...)
	}

	if b.hub != nil {
		b.hub.Publish(Event{Name: name, Payload: payload, Timestamp: time.Now()})
	}
}
