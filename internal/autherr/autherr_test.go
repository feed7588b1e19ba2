package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   codes.Code
		status int
	}{
		{Validation("bad did"), codes.InvalidArgument, http.StatusBadRequest},
		{NotFound("no method"), codes.NotFound, http.StatusNotFound},
		{Conflict("already active"), codes.AlreadyExists, http.StatusConflict},
		{Unauthorized("invalid credential"), codes.Unauthenticated, http.StatusUnauthorized},
		{RateLimited(), codes.ResourceExhausted, http.StatusTooManyRequests},
		{Upstream("ledger unavailable", errors.New("dial")), codes.Unavailable, http.StatusServiceUnavailable},
		{Internal("secret unavailable", nil), codes.Internal, http.StatusInternalServerError},
		{errors.New("plain"), codes.Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := GRPCCode(tc.err); got != tc.code {
			t.Errorf("GRPCCode(%v) = %v, want %v", tc.err, got, tc.code)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("complete setup: %w", Conflict("method already activated"))
	if !errors.Is(err, ErrConflict) {
		t.Error("wrapped conflict should match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict should not match ErrNotFound")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %v, want conflict", KindOf(err))
	}
}

func TestPublicMessage_HidesCause(t *testing.T) {
	err := Internal("secret unavailable", errors.New("cipher: message authentication failed"))
	if got := PublicMessage(err); got != "secret unavailable" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(errors.New("pq: connection refused")); got != "internal error" {
		t.Errorf("PublicMessage(plain) = %q", got)
	}
}
