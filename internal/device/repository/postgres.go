package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"didlink/internal/db"
	"didlink/internal/device/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a trusted device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the device. The device must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.TrustedDevice) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO trusted_devices
		(id, did, fingerprint, device_token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.DID, d.Fingerprint, d.TokenHash, d.ExpiresAt, d.CreatedAt)
	return err
}

// GetByTokenHash returns the device for the hash, or nil if not found.
// Revoked and expired devices are returned; callers check TrustedFor.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.TrustedDevice, error) {
	var d domain.TrustedDevice
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT id, did, fingerprint, device_token_hash, expires_at, created_at, revoked, revoked_at
		FROM trusted_devices WHERE device_token_hash = $1`, tokenHash).
		Scan(&d.ID, &d.DID, &d.Fingerprint, &d.TokenHash, &d.ExpiresAt, &d.CreatedAt, &d.Revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.RevokedAt = db.TimePtr(revokedAt)
	return &d, nil
}

// RevokeByTokenHash marks the device revoked. The row is kept.
func (r *PostgresRepository) RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE trusted_devices SET revoked = TRUE, revoked_at = $2
		WHERE device_token_hash = $1 AND NOT revoked`, tokenHash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
