package repository

import (
	"context"
	"time"

	"didlink/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Rotate swaps the token hash of an unrevoked session. It returns false when oldHash is no longer current.
	Rotate(ctx context.Context, oldHash, newHash string, expiresAt, at time.Time) (bool, error)
	RevokeByTokenHash(ctx context.Context, tokenHash, reason string, at time.Time) (bool, error)
	RevokeAllByDID(ctx context.Context, did, reason string, at time.Time) (int, error)
}
