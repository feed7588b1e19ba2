// Package attempt rate-limits verification attempts and keeps their append-only audit trail.
package attempt

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"didlink/internal/attempt/domain"
	attemptrepo "didlink/internal/attempt/repository"
	"didlink/internal/autherr"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// Policy holds the sliding window width and the failure threshold per bucket.
// A bucket with a limit of zero is not enforced.
type Policy struct {
	Window time.Duration
	Limits map[attemptrepo.Bucket]int
}

// DefaultPolicy returns a 15 minute window with 5 TOTP, 3 OAuth and 10 session-create failures.
func DefaultPolicy() Policy {
	return Policy{
		Window: 15 * time.Minute,
		Limits: map[attemptrepo.Bucket]int{
			attemptrepo.BucketTOTP:          5,
			attemptrepo.BucketOAuth:         3,
			attemptrepo.BucketSessionCreate: 10,
		},
	}
}

// Key identifies the attempt being gated or recorded.
type Key struct {
	DID        string
	IP         string
	MethodType string
	Action     domain.Action
}

// Buckets returns the buckets k counts toward: the factor bucket, plus session_create for session logins.
func (k Key) Buckets() []attemptrepo.Bucket {
	var out []attemptrepo.Bucket
	switch {
	case k.MethodType == "totp":
		out = append(out, attemptrepo.BucketTOTP)
	case strings.HasPrefix(k.MethodType, "oauth:"):
		out = append(out, attemptrepo.BucketOAuth)
	}
	if k.Action == domain.ActionSessionCreate {
		out = append(out, attemptrepo.BucketSessionCreate)
	}
	return out
}

// Tracker gates verification calls on the failure count in the window and appends every outcome.
type Tracker struct {
	repo        attemptrepo.Repository
	policy      Policy
	ipExtractor IPExtractor
	now         func() time.Time
	attempts    metric.Int64Counter
}

// NewTracker returns a Tracker persisting to repo. ipExtractor may be nil; then keys without an IP are recorded as "unknown".
func NewTracker(repo attemptrepo.Repository, policy Policy, ipExtractor IPExtractor) *Tracker {
	counter, err := otel.Meter("didlink").Int64Counter("didlink.auth.attempts",
		metric.WithDescription("Verification attempts by method type, action and outcome"))
	if err != nil {
		log.Printf("attempt: counter: %v", err)
	}
	return &Tracker{repo: repo, policy: policy, ipExtractor: ipExtractor, now: time.Now, attempts: counter}
}

// SetClock replaces the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) normalize(ctx context.Context, k Key) Key {
	if k.IP == "" && t.ipExtractor != nil {
		k.IP = t.ipExtractor(ctx)
	}
	if k.IP == "" {
		k.IP = "unknown"
	}
	return k
}

// Check returns RateLimited when any bucket of k has reached its limit within the window.
// The rejection itself is recorded. The count is never revealed to the caller.
func (t *Tracker) Check(ctx context.Context, k Key) error {
	if t == nil || t.repo == nil {
		return nil
	}
	k = t.normalize(ctx, k)
	since := t.now().UTC().Add(-t.policy.Window)
	for _, b := range k.Buckets() {
		limit := t.policy.Limits[b]
		if limit <= 0 {
			continue
		}
		n, err := t.repo.CountFailures(ctx, attemptrepo.Filter{DID: k.DID, IP: k.IP, Bucket: b, Since: since})
		if err != nil {
			return autherr.Internal("attempt store unavailable", err)
		}
		if n >= limit {
			rejected := autherr.RateLimited()
			t.Record(ctx, k, rejected)
			return rejected
		}
	}
	return nil
}

// Record appends the outcome of one attempt. A nil err is a success; otherwise the failure
// reason is the error kind. Best-effort: store failures are logged and not returned.
func (t *Tracker) Record(ctx context.Context, k Key, err error) {
	if t == nil || t.repo == nil {
		return
	}
	k = t.normalize(ctx, k)
	entry := &domain.AuthAttempt{
		ID:         uuid.New().String(),
		DID:        k.DID,
		IP:         k.IP,
		MethodType: k.MethodType,
		Action:     k.Action,
		Success:    err == nil,
		CreatedAt:  t.now().UTC(),
	}
	outcome := "success"
	if err != nil {
		entry.FailureReason = autherr.KindOf(err).String()
		outcome = entry.FailureReason
	}
	if t.attempts != nil {
		t.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method_type", k.MethodType),
			attribute.String("action", string(k.Action)),
			attribute.String("outcome", outcome),
		))
	}
	if err := t.repo.Append(ctx, entry); err != nil {
		log.Printf("attempt: failed to record %s/%s: %v", k.Action, k.MethodType, err)
	}
}
