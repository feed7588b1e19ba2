// Package producer publishes auth events to a stream (Kafka) for the event worker.
package producer

import (
	"context"

	"didlink/internal/telemetry"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call through telemetry.EmitAsync.
	Emit(ctx context.Context, event *telemetry.AuthEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
