package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
)

const bearerPrefix = "bearer "

// BearerUnary returns a unary server interceptor that copies a Bearer session token from the
// authorization metadata into the context. It never rejects: the session RPCs fall back to it
// when session_token is absent from the request body, and the session service decides validity.
func BearerUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if token := extractBearer(ctx); token != "" {
			ctx = WithBearer(ctx, token)
		}
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	v := firstMetadata(ctx, "authorization")
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
