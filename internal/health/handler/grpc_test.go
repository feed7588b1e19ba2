package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

const svc = "didlink.auth.v1.AuthService"

func status(t *testing.T, srv *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestRefresh_NilCheckers(t *testing.T) {
	srv := NewServer(nil, nil, []string{svc})
	if got := srv.Refresh(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Refresh = %v, want SERVING", got)
	}
	if got := status(t, srv, svc); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("service status = %v, want SERVING", got)
	}
}

func TestRefresh_PingerFailure(t *testing.T) {
	srv := NewServer(&mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, []string{svc})
	if got := srv.Refresh(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Refresh = %v, want NOT_SERVING", got)
	}
	if got := status(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall status = %v, want NOT_SERVING", got)
	}
}

func TestRefresh_PolicyCheckerFailure(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, nil)
	if got := srv.Refresh(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Refresh = %v, want NOT_SERVING", got)
	}
}

func TestRefresh_RecoversAfterFailure(t *testing.T) {
	pinger := &mockPinger{pingErr: errors.New("down")}
	srv := NewServer(pinger, nil, []string{svc})
	srv.Refresh(context.Background())
	pinger.pingErr = nil
	if got := srv.Refresh(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Refresh = %v, want SERVING", got)
	}
}

func TestCheck_ExtraCheckNamed(t *testing.T) {
	srv := NewServer(nil, nil, nil, Check{Name: "redis", Fn: func(context.Context) error { return errors.New("dial tcp") }})
	err := srv.Check(context.Background())
	if err == nil || err.Error() != "redis: dial tcp" {
		t.Errorf("Check = %v, want redis: dial tcp", err)
	}
}

func TestReadyz(t *testing.T) {
	ok := NewServer(&mockPinger{}, &mockPolicyChecker{}, nil)
	rec := httptest.NewRecorder()
	ok.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	down := NewServer(&mockPinger{pingErr: errors.New("down")}, nil, nil)
	rec = httptest.NewRecorder()
	down.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	down.Livez(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}
