package attempt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"didlink/internal/attempt/attempttest"
	"didlink/internal/attempt/domain"
	attemptrepo "didlink/internal/attempt/repository"
	"didlink/internal/autherr"
)

func newTestTracker(repo *attempttest.Repo, now *time.Time) *Tracker {
	tr := NewTracker(repo, DefaultPolicy(), func(context.Context) string { return "203.0.113.7" })
	tr.SetClock(func() time.Time { return *now })
	return tr
}

func TestTracker_TOTPLockoutAfterFive(t *testing.T) {
	repo := &attempttest.Repo{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(repo, &now)
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", MethodType: "totp", Action: domain.ActionSetupVerify}

	for i := 0; i < 5; i++ {
		if err := tr.Check(ctx, key); err != nil {
			t.Fatalf("attempt %d: Check = %v, want nil", i+1, err)
		}
		tr.Record(ctx, key, autherr.Unauthorized("invalid code"))
		now = now.Add(time.Second)
	}
	err := tr.Check(ctx, key)
	if !errors.Is(err, autherr.ErrRateLimited) {
		t.Fatalf("6th Check = %v, want RateLimited", err)
	}
	if strings.ContainsAny(autherr.PublicMessage(err), "0123456789") {
		t.Errorf("rate limit message leaks a count: %q", autherr.PublicMessage(err))
	}

	last := repo.Entries[len(repo.Entries)-1]
	if last.FailureReason != "rate_limited" || last.Success {
		t.Errorf("rejection not recorded: %+v", last)
	}
	if last.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want extractor value", last.IP)
	}

	// The window slides: 15 minutes after the first failure one slot frees up.
	now = time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC).Add(500 * time.Millisecond)
	if err := tr.Check(ctx, key); err != nil {
		t.Errorf("Check after window = %v, want nil", err)
	}
}

func TestTracker_OAuthNarrowerThanTOTP(t *testing.T) {
	repo := &attempttest.Repo{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(repo, &now)
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", MethodType: "oauth:github", Action: domain.ActionOAuthCallback}

	for i := 0; i < 3; i++ {
		tr.Record(ctx, key, autherr.Unauthorized("denied"))
	}
	if err := tr.Check(ctx, key); !errors.Is(err, autherr.ErrRateLimited) {
		t.Fatalf("Check = %v, want RateLimited", err)
	}
	totp := Key{DID: "did:example:abc123", MethodType: "totp", Action: domain.ActionSetupVerify}
	if err := tr.Check(ctx, totp); err != nil {
		t.Errorf("TOTP bucket should be unaffected, got %v", err)
	}
}

func TestTracker_IgnoresServiceSideFailures(t *testing.T) {
	repo := &attempttest.Repo{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(repo, &now)
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", MethodType: "totp", Action: domain.ActionSetupVerify}

	for i := 0; i < 10; i++ {
		tr.Record(ctx, key, autherr.Upstream("ledger unavailable", errors.New("timeout")))
		tr.Record(ctx, key, errors.New("db down"))
	}
	if err := tr.Check(ctx, key); err != nil {
		t.Errorf("Check = %v, want nil", err)
	}
	if got := repo.Entries[0].FailureReason; got != "upstream_failure" {
		t.Errorf("FailureReason = %q, want upstream_failure", got)
	}
	if got := repo.Entries[1].FailureReason; got != "internal" {
		t.Errorf("FailureReason = %q, want internal", got)
	}
}

func TestTracker_SessionCreateBucket(t *testing.T) {
	repo := &attempttest.Repo{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := DefaultPolicy()
	policy.Limits[attemptrepo.BucketTOTP] = 100
	tr := NewTracker(repo, policy, nil)
	tr.SetClock(func() time.Time { return now })
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", IP: "10.0.0.1", MethodType: "totp", Action: domain.ActionSessionCreate}

	for i := 0; i < 10; i++ {
		tr.Record(ctx, key, autherr.Unauthorized("invalid code"))
	}
	if err := tr.Check(ctx, key); !errors.Is(err, autherr.ErrRateLimited) {
		t.Fatalf("Check = %v, want RateLimited", err)
	}
	other := key
	other.IP = "10.0.0.2"
	if err := tr.Check(ctx, other); err != nil {
		t.Errorf("other ip Check = %v, want nil", err)
	}
}

func TestTracker_Successes(t *testing.T) {
	repo := &attempttest.Repo{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(repo, &now)
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", MethodType: "totp", Action: domain.ActionSetupVerify}

	tr.Record(ctx, key, nil)
	if len(repo.Entries) != 1 || !repo.Entries[0].Success || repo.Entries[0].FailureReason != "" {
		t.Fatalf("entries = %+v", repo.Entries)
	}
	if repo.Entries[0].ID == "" || repo.Entries[0].CreatedAt.IsZero() {
		t.Error("ID and CreatedAt should be set")
	}
}

func TestTracker_StoreErrors(t *testing.T) {
	ctx := context.Background()
	key := Key{DID: "did:example:abc123", MethodType: "totp", Action: domain.ActionSetupVerify}

	tr := NewTracker(&attempttest.Repo{CountErr: errors.New("conn refused")}, DefaultPolicy(), nil)
	if err := tr.Check(ctx, key); !errors.Is(err, autherr.ErrInternal) {
		t.Errorf("Check = %v, want Internal", err)
	}
	// Record is best-effort.
	NewTracker(&attempttest.Repo{AppendErr: errors.New("conn refused")}, DefaultPolicy(), nil).Record(ctx, key, nil)

	var nilTracker *Tracker
	if err := nilTracker.Check(ctx, key); err != nil {
		t.Errorf("nil tracker Check = %v", err)
	}
	nilTracker.Record(ctx, key, nil)
}

func TestKey_Buckets(t *testing.T) {
	cases := []struct {
		key  Key
		want []attemptrepo.Bucket
	}{
		{Key{MethodType: "totp", Action: domain.ActionSetupVerify}, []attemptrepo.Bucket{attemptrepo.BucketTOTP}},
		{Key{MethodType: "oauth:google", Action: domain.ActionOAuthCallback}, []attemptrepo.Bucket{attemptrepo.BucketOAuth}},
		{Key{MethodType: "totp", Action: domain.ActionSessionCreate}, []attemptrepo.Bucket{attemptrepo.BucketTOTP, attemptrepo.BucketSessionCreate}},
		{Key{MethodType: "", Action: domain.ActionSessionCreate}, []attemptrepo.Bucket{attemptrepo.BucketSessionCreate}},
	}
	for _, tc := range cases {
		got := tc.key.Buckets()
		if len(got) != len(tc.want) {
			t.Errorf("%+v: Buckets = %v, want %v", tc.key, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%+v: Buckets = %v, want %v", tc.key, got, tc.want)
			}
		}
	}
}
