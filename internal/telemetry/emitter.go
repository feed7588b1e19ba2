// Package telemetry carries auth events (setup, activation, sessions, lockouts) to OTel logs and Kafka.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Event types.
const (
	EventMethodSetupStarted = "method_setup_started"
	EventMethodActivated    = "method_activated"
	EventMethodRevoked      = "method_revoked"
	EventSessionIssued      = "session_issued"
	EventSessionRevoked     = "session_revoked"
	EventRateLimited        = "rate_limited"
	EventRequestRejected    = "request_rejected"
)

// Source is stamped on every event emitted by the API server.
const Source = "didlink-auth"

// AuthEvent is one auth lifecycle event. It never carries secrets, codes or tokens.
type AuthEvent struct {
	EventType  string            `json:"event_type"`
	Source     string            `json:"source"`
	DID        string            `json:"did,omitempty"`
	MethodID   string            `json:"method_id,omitempty"`
	MethodType string            `json:"method_type,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEvent returns an event of the given type stamped with Source and the current time.
func NewEvent(eventType string) *AuthEvent {
	return &AuthEvent{EventType: eventType, Source: Source, CreatedAt: time.Now().UTC()}
}

// EventEmitter emits auth events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *AuthEvent) error
}

// Fanout emits to every non-nil emitter and joins their errors.
type Fanout []EventEmitter

func (f Fanout) Emit(ctx context.Context, event *AuthEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
