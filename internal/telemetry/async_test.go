package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*AuthEvent
	emitErr error
	done    chan struct{}
}

func newMockEmitter(buffer int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, buffer)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *AuthEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func (m *mockEventEmitter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d/%d", i+1, n)
		}
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), NewEvent(EventSessionIssued))
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := newMockEmitter(1)
	EmitAsync(emitter, context.Background(), nil)

	time.Sleep(10 * time.Millisecond)
	if events := emitter.getEvents(); len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := newMockEmitter(1)
	event := &AuthEvent{EventType: EventMethodActivated, DID: "did:example:abc123", MethodType: "totp"}

	EmitAsync(emitter, context.Background(), event)
	emitter.wait(t, 1)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Source != Source {
		t.Errorf("source = %q, want %q", events[0].Source, Source)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_UsesBackgroundContext(t *testing.T) {
	emitter := newMockEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel the request context immediately

	// Should still emit even though request context is cancelled
	EmitAsync(emitter, ctx, NewEvent(EventSessionRevoked))
	emitter.wait(t, 1)
}

func TestEmitAsync_ErrorHandling(t *testing.T) {
	emitter := newMockEmitter(1)
	emitter.emitErr = context.DeadlineExceeded

	// Error is logged but doesn't affect the caller
	EmitAsync(emitter, context.Background(), NewEvent(EventRateLimited))
	emitter.wait(t, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := newMockEmitter(10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), NewEvent(EventSessionIssued))
		}()
	}
	wg.Wait()
	emitter.wait(t, 10)

	if events := emitter.getEvents(); len(events) != 10 {
		t.Errorf("expected 10 events, got %d", len(events))
	}
}

func TestFanout(t *testing.T) {
	a := newMockEmitter(1)
	b := newMockEmitter(1)
	b.emitErr = errors.New("kafka down")

	err := Fanout{a, nil, b}.Emit(context.Background(), NewEvent(EventMethodRevoked))
	if err == nil {
		t.Fatal("Fanout should return the failing emitter's error")
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
}
