package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"didlink/internal/telemetry"
)

var rejectedCodes = map[codes.Code]bool{
	codes.Unauthenticated:   true,
	codes.PermissionDenied:  true,
	codes.ResourceExhausted: true,
}

// TelemetryUnary returns a unary server interceptor that emits a request_rejected auth event when an
// RPC fails with Unauthenticated, PermissionDenied or ResourceExhausted. Best-effort: emits run
// asynchronously and failures are logged. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || err == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		if !rejectedCodes[code] {
			return resp, err
		}
		ip, ok := GetClientIP(ctx)
		if !ok {
			ip = ClientIP(ctx)
		}
		requestID, _ := GetRequestID(ctx)
		ev := telemetry.NewEvent(telemetry.EventRequestRejected)
		ev.Metadata = map[string]string{
			"full_method": info.FullMethod,
			"status_code": code.String(),
			"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
			"client_ip":   ip,
			"request_id":  requestID,
		}
		telemetry.EmitAsync(emitter, ctx, ev)
		return resp, err
	}
}
