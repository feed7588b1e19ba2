// Package attempttest provides an in-memory attempt repository for service tests.
package attempttest

import (
	"context"
	"strings"
	"sync"

	"didlink/internal/attempt/domain"
	attemptrepo "didlink/internal/attempt/repository"
)

// Repo mirrors the Postgres bucket and failure-reason filters.
type Repo struct {
	mu        sync.Mutex
	Entries   []*domain.AuthAttempt
	AppendErr error
	CountErr  error
}

func (m *Repo) Append(ctx context.Context, a *domain.AuthAttempt) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, a)
	return nil
}

func (m *Repo) CountFailures(ctx context.Context, f attemptrepo.Filter) (int, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.Entries {
		if a.DID != f.DID || a.IP != f.IP || !a.CreatedAt.After(f.Since) || a.Success {
			continue
		}
		switch a.FailureReason {
		case "upstream_failure", "internal", "rate_limited":
			continue
		}
		switch f.Bucket {
		case attemptrepo.BucketTOTP:
			if a.MethodType != "totp" {
				continue
			}
		case attemptrepo.BucketOAuth:
			if !strings.HasPrefix(a.MethodType, "oauth:") {
				continue
			}
		case attemptrepo.BucketSessionCreate:
			if a.Action != domain.ActionSessionCreate {
				continue
			}
		}
		n++
	}
	return n, nil
}

// Snapshot returns a copy of the recorded attempts.
func (m *Repo) Snapshot() []*domain.AuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuthAttempt(nil), m.Entries...)
}
