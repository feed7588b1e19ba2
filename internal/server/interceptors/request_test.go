package interceptors

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded first hop", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.7, 10.0.0.1")), "203.0.113.7"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "198.51.100.2")), "198.51.100.2"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.9"), Port: 5000}}), "192.0.2.9"},
		{"nothing", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestUnary_StampsContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc", "x-real-ip", "198.51.100.2"))
	var seenID, seenIP string
	_, err := RequestUnary()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/t/M"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		seenID, _ = GetRequestID(ctx)
		seenIP, _ = GetClientIP(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seenID != "abc" || seenIP != "198.51.100.2" {
		t.Errorf("request id = %q, ip = %q", seenID, seenIP)
	}
}

func TestRequestUnary_GeneratesRequestID(t *testing.T) {
	var seenID string
	_, _ = RequestUnary()(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		seenID, _ = GetRequestID(ctx)
		return nil, nil
	})
	if len(seenID) != 36 {
		t.Errorf("generated request id = %q, want a UUID", seenID)
	}
}

func TestAuditUnary_PassesThrough(t *testing.T) {
	wantErr := status.Error(codes.Unauthenticated, "nope")
	interceptor := AuditUnary(map[string]bool{"/skip/M": true})
	for _, method := range []string{"/t/M", "/skip/M"} {
		resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req interface{}) (interface{}, error) {
			return "resp", wantErr
		})
		if resp != "resp" || err != wantErr {
			t.Errorf("%s: resp=%v err=%v", method, resp, err)
		}
	}
}
