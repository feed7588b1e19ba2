package interceptors

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"didlink/internal/telemetry"
)

type chanEmitter chan *telemetry.AuthEvent

func (c chanEmitter) Emit(ctx context.Context, ev *telemetry.AuthEvent) error {
	c <- ev
	return nil
}

func call(t *testing.T, interceptor grpc.UnaryServerInterceptor, method string, err error) {
	t.Helper()
	ctx := WithRequest(context.Background(), "req-9", "192.0.2.1")
	_, got := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, err
	})
	if !errors.Is(got, err) && got != err {
		t.Fatalf("interceptor changed error: %v", got)
	}
}

func TestTelemetryUnary_EmitsOnRejection(t *testing.T) {
	events := make(chanEmitter, 4)
	interceptor := TelemetryUnary(events, nil)

	call(t, interceptor, "/didlink.auth.v1.AuthService/CreateSession", status.Error(codes.ResourceExhausted, "too many attempts"))

	select {
	case ev := <-events:
		if ev.EventType != telemetry.EventRequestRejected {
			t.Errorf("event type = %q", ev.EventType)
		}
		if ev.Metadata["status_code"] != "ResourceExhausted" || ev.Metadata["client_ip"] != "192.0.2.1" || ev.Metadata["request_id"] != "req-9" {
			t.Errorf("metadata = %v", ev.Metadata)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
}

func TestTelemetryUnary_IgnoresOtherOutcomes(t *testing.T) {
	events := make(chanEmitter, 4)
	interceptor := TelemetryUnary(events, map[string]bool{"/skip/M": true})

	call(t, interceptor, "/t/M", nil)
	call(t, interceptor, "/t/M", status.Error(codes.InvalidArgument, "bad"))
	call(t, interceptor, "/skip/M", status.Error(codes.Unauthenticated, "no"))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelemetryUnary_NilEmitter(t *testing.T) {
	call(t, TelemetryUnary(nil, nil), "/t/M", status.Error(codes.Unauthenticated, "no"))
}
