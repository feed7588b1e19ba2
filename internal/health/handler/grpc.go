// Package handler serves readiness on grpc.health.v1 and on HTTP probes.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is an extra named dependency probe (e.g. Redis).
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server runs the readiness checks and mirrors the outcome into a standard gRPC health server
// for the overall service ("") and each name passed to NewServer.
type Server struct {
	pinger   Pinger
	policy   PolicyChecker
	checks   []Check
	health   *health.Server
	services []string
}

// NewServer returns a Server. pinger and policy may be nil to skip those checks.
func NewServer(pinger Pinger, policy PolicyChecker, services []string, checks ...Check) *Server {
	return &Server{
		pinger:   pinger,
		policy:   policy,
		checks:   checks,
		health:   health.NewServer(),
		services: services,
	}
}

// Register adds grpc.health.v1.Health to s.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.health)
}

// Check runs every probe and returns the first failure.
func (s *Server) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// Refresh runs Check and publishes the serving status. Failures are logged, never returned.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.Check(ctx); err != nil {
		log.Printf("health: not ready: %v", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	for _, name := range s.services {
		s.health.SetServingStatus(name, st)
	}
	return st
}

// Run refreshes the status every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain before GracefulStop.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Livez always answers 200 while the process serves HTTP.
func (s *Server) Livez(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// Readyz answers 200 when every check passes and 503 otherwise.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.Check(r.Context()); err != nil {
		log.Printf("health: readyz: %v", err)
		writeStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
