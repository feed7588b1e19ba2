package repository

import (
	"context"
	"time"

	"didlink/internal/recovery/domain"
)

// Repository defines persistence for recovery codes.
type Repository interface {
	// ReplaceForDID marks every unconsumed code of the DID consumed and inserts codes.
	ReplaceForDID(ctx context.Context, did string, codes []*domain.RecoveryCode, at time.Time) error
	// Consume marks the matching unconsumed code consumed. Returns false when no such code exists.
	Consume(ctx context.Context, did, codeHash string, at time.Time) (bool, error)
	CountRemaining(ctx context.Context, did string) (int, error)
}
