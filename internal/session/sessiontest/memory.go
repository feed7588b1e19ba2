// Package sessiontest provides in-memory session and trusted device repositories for service tests.
package sessiontest

import (
	"context"
	"sync"
	"time"

	devicedomain "didlink/internal/device/domain"
	"didlink/internal/session/domain"
)

// Sessions implements the session repository in memory.
type Sessions struct {
	mu   sync.Mutex
	rows []*domain.Session
}

func (s *Sessions) Create(ctx context.Context, row *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *row
	s.rows = append(s.rows, &c)
	return nil
}

func (s *Sessions) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TokenHash == tokenHash {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Sessions) Rotate(ctx context.Context, oldHash, newHash string, expiresAt, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TokenHash == oldHash && !r.Revoked {
			r.TokenHash = newHash
			r.ExpiresAt = expiresAt
			r.RefreshedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *Sessions) RevokeByTokenHash(ctx context.Context, tokenHash, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TokenHash == tokenHash && !r.Revoked {
			revoke(r, reason, at)
			return true, nil
		}
	}
	return false, nil
}

func (s *Sessions) RevokeAllByDID(ctx context.Context, did, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.DID == did && !r.Revoked {
			revoke(r, reason, at)
			n++
		}
	}
	return n, nil
}

// All returns copies of every stored session.
func (s *Sessions) All() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, len(s.rows))
	for i, r := range s.rows {
		out[i] = *r
	}
	return out
}

func revoke(r *domain.Session, reason string, at time.Time) {
	r.Revoked = true
	r.RevokedAt = &at
	r.RevokeReason = reason
}

// Devices implements the trusted device repository in memory.
type Devices struct {
	mu   sync.Mutex
	rows []*devicedomain.TrustedDevice
}

func (d *Devices) Create(ctx context.Context, dev *devicedomain.TrustedDevice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *dev
	d.rows = append(d.rows, &c)
	return nil
}

func (d *Devices) GetByTokenHash(ctx context.Context, tokenHash string) (*devicedomain.TrustedDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rows {
		if r.TokenHash == tokenHash {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (d *Devices) RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rows {
		if r.TokenHash == tokenHash && !r.Revoked {
			r.Revoked = true
			r.RevokedAt = &at
			return true, nil
		}
	}
	return false, nil
}
