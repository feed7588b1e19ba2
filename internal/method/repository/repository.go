package repository

import (
	"context"
	"errors"
	"time"

	"didlink/internal/method/domain"
)

var (
	// ErrNotPending is returned by Activate when the method has already left the Pending state.
	ErrNotPending = errors.New("auth method is not pending")
	// ErrLiveMethodExists is returned when a pending or active method of the same type already exists for the DID.
	ErrLiveMethodExists = errors.New("a live auth method of this type already exists")
)

// Activation carries the fields written when a pending method becomes active.
type Activation struct {
	// EncryptedSecret replaces the stored secret when non-empty (OAuth token bundle).
	EncryptedSecret string
	PublicKeyHash   string
	// Step is the TOTP step consumed by the setup code; nil for OAuth.
	Step *int64
	At   time.Time
}

// Repository defines persistence for auth methods. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuthMethod, error)
	// GetLive returns the pending or active method of type t for did.
	GetLive(ctx context.Context, did string, t domain.MethodType) (*domain.AuthMethod, error)
	ListByDID(ctx context.Context, did string) ([]*domain.AuthMethod, error)
	// ReplacePending revokes any pending method of the same DID and type and inserts m.
	// Returns ErrLiveMethodExists when an active one exists.
	ReplacePending(ctx context.Context, m *domain.AuthMethod) error
	// Activate moves a pending method to active in one conditional write and marks it primary
	// when the DID has no other active primary method. Returns ErrNotPending for the loser of a race.
	Activate(ctx context.Context, id string, a Activation) (*domain.AuthMethod, error)
	SetLedgerTx(ctx context.Context, id, txRef string) error
	// ConsumeStep records step as used only if it is newer than the stored step. Returns false on replay.
	ConsumeStep(ctx context.Context, id string, step int64, at time.Time) (bool, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// Revoke marks a pending or active method revoked. Returns false when it was already revoked.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
}
