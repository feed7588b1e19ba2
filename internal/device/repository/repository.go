package repository

import (
	"context"
	"time"

	"didlink/internal/device/domain"
)

// Repository defines persistence for trusted devices.
type Repository interface {
	Create(ctx context.Context, d *domain.TrustedDevice) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.TrustedDevice, error)
	// RevokeByTokenHash returns false when no unrevoked device has the hash.
	RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) (bool, error)
}
