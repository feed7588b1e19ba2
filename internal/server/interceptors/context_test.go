package interceptors

import (
	"context"
	"testing"
)

func TestWithRequest_SetsValues(t *testing.T) {
	ctx := WithRequest(context.Background(), "req-1", "10.0.0.1")

	requestID, ok := GetRequestID(ctx)
	if !ok || requestID != "req-1" {
		t.Errorf("GetRequestID = %q, %v; want req-1, true", requestID, ok)
	}
	ip, ok := GetClientIP(ctx)
	if !ok || ip != "10.0.0.1" {
		t.Errorf("GetClientIP = %q, %v; want 10.0.0.1, true", ip, ok)
	}
	if got := ClientIPFromContext(ctx); got != "10.0.0.1" {
		t.Errorf("ClientIPFromContext = %q", got)
	}
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetRequestID(ctx); ok {
		t.Error("GetRequestID should return false on empty context")
	}
	if _, ok := GetClientIP(ctx); ok {
		t.Error("GetClientIP should return false on empty context")
	}
	if ClientIPFromContext(ctx) != "" {
		t.Error("ClientIPFromContext should be empty")
	}
	if GetBearer(ctx) != "" {
		t.Error("GetBearer should be empty")
	}
}
