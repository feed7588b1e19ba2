package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	authv1 "didlink/api/auth/v1"
	healthhandler "didlink/internal/health/handler"
	"didlink/internal/server/interceptors"
	"didlink/internal/telemetry"
)

// HealthCheckMethod is excluded from auditing and rejection telemetry.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

var quietMethods = map[string]bool{
	HealthCheckMethod:              true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Auth serves didlink.auth.v1.AuthService. If nil, every AuthService RPC returns Unimplemented.
	Auth authv1.AuthServiceServer
	// Health serves grpc.health.v1.Health. If nil, the health service is not registered.
	Health *healthhandler.Server
	// Events receives request_rejected events from the telemetry interceptor. May be nil.
	Events telemetry.EventEmitter
}

// RegisterServices registers the gRPC services with the given server.
//
//   - didlink.auth.v1.AuthService → internal/auth/handler
//   - grpc.health.v1.Health       → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	auth := deps.Auth
	if auth == nil {
		auth = authv1.UnimplementedAuthServiceServer{}
	}
	authv1.RegisterAuthServiceServer(s, auth)
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}

// NewGRPCServer returns a server with OTel instrumentation and the request, bearer, audit and
// telemetry interceptors, with deps registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RequestUnary(),
			interceptors.BearerUnary(),
			interceptors.AuditUnary(quietMethods),
			interceptors.TelemetryUnary(deps.Events, quietMethods),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// NewHTTPServer wraps handler with otelhttp and sets conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(handler, "didlink-http"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
