package interceptors

import (
	"context"
	"log"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RequestUnary returns a unary server interceptor that stamps each call with a request id
// (x-request-id metadata or a fresh UUID) and the client IP.
func RequestUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := firstMetadata(ctx, "x-request-id")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		return handler(WithRequest(ctx, requestID, ClientIP(ctx)), req)
	}
}

// AuditUnary returns a unary server interceptor that writes one log line per RPC with method,
// status code, client IP and duration. skipMethods is the set of full method names not logged
// (e.g. health checks). Request and response bodies are never logged.
func AuditUnary(skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		requestID, _ := GetRequestID(ctx)
		ip, ok := GetClientIP(ctx)
		if !ok {
			ip = ClientIP(ctx)
		}
		log.Printf("audit: method=%s code=%s ip=%s request_id=%s duration=%s",
			info.FullMethod, status.Code(err), ip, requestID, time.Since(start).Round(time.Millisecond))
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if s := firstMetadata(ctx, "x-forwarded-for"); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := firstMetadata(ctx, "x-real-ip"); s != "" {
		return s
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
