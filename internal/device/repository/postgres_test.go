package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"didlink/internal/db/dbtest"
	"didlink/internal/device/domain"
)

func TestPostgresRepository_CreateGetRevoke(t *testing.T) {
	conn := dbtest.Open(t, "trusted_devices")
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	d := &domain.TrustedDevice{
		ID:          uuid.NewString(),
		DID:         "did:example:abc123",
		Fingerprint: "fp-1",
		TokenHash:   "hash-" + uuid.NewString(),
		ExpiresAt:   now.Add(30 * 24 * time.Hour),
		CreatedAt:   now,
	}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByTokenHash(ctx, d.TokenHash)
	if err != nil || got == nil {
		t.Fatalf("GetByTokenHash = %v, %v", got, err)
	}
	if !got.TrustedFor(d.DID, "fp-1", now) {
		t.Errorf("device should be trusted: %+v", got)
	}

	if ok, err := repo.RevokeByTokenHash(ctx, d.TokenHash, now); err != nil || !ok {
		t.Fatalf("RevokeByTokenHash = %v, %v", ok, err)
	}
	if ok, _ := repo.RevokeByTokenHash(ctx, d.TokenHash, now); ok {
		t.Error("second revoke should be a no-op")
	}
	got, _ = repo.GetByTokenHash(ctx, d.TokenHash)
	if got == nil || !got.Revoked || got.RevokedAt == nil {
		t.Errorf("revoked device = %+v", got)
	}

	missing, err := repo.GetByTokenHash(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByTokenHash(missing) = %v, %v", missing, err)
	}
}
