package interceptors

import "context"

type contextKey struct{ name string }

var (
	requestIDKey = contextKey{"request_id"}
	clientIPKey  = contextKey{"client_ip"}
	bearerKey    = contextKey{"bearer"}
)

// WithRequest returns a context carrying the request id and client IP.
func WithRequest(ctx context.Context, requestID, clientIP string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return ctx
}

// GetRequestID returns the request id from context and true if set; otherwise "", false.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}

// GetClientIP returns the client IP from context and true if set; otherwise "", false.
func GetClientIP(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIPKey).(string)
	return v, ok
}

// ClientIPFromContext has the shape of attempt.IPExtractor. Contexts that did not pass
// through RequestUnary yield "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := GetClientIP(ctx)
	return ip
}

// WithBearer returns a context carrying a bearer session token.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey, token)
}

// GetBearer returns the bearer token set by BearerUnary, or "".
func GetBearer(ctx context.Context) string {
	v, _ := ctx.Value(bearerKey).(string)
	return v
}
