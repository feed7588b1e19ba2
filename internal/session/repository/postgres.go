package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"didlink/internal/db"
	"didlink/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session. The session must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions
		(id, did, method_id, method_type, token_hash, device_fingerprint, trusted_device, client_ip, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.DID, s.MethodID, s.MethodType, s.TokenHash, s.DeviceFingerprint, s.TrustedDevice, s.ClientIP, s.IssuedAt, s.ExpiresAt)
	return err
}

// GetByTokenHash returns the session for the hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var s domain.Session
	var refreshedAt, revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT id, did, method_id, method_type, token_hash, device_fingerprint, trusted_device,
			client_ip, issued_at, expires_at, refreshed_at, revoked, revoked_at, revoke_reason
		FROM sessions WHERE token_hash = $1`, tokenHash).
		Scan(&s.ID, &s.DID, &s.MethodID, &s.MethodType, &s.TokenHash, &s.DeviceFingerprint, &s.TrustedDevice,
			&s.ClientIP, &s.IssuedAt, &s.ExpiresAt, &refreshedAt, &s.Revoked, &revokedAt, &s.RevokeReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.RefreshedAt = db.TimePtr(refreshedAt)
	s.RevokedAt = db.TimePtr(revokedAt)
	return &s, nil
}

// Rotate replaces the token hash with a conditional UPDATE, so two refreshes of the same token cannot both win.
func (r *PostgresRepository) Rotate(ctx context.Context, oldHash, newHash string, expiresAt, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET token_hash = $2, expires_at = $3, refreshed_at = $4
		WHERE token_hash = $1 AND NOT revoked`, oldHash, newHash, expiresAt, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RevokeByTokenHash marks one session revoked. Revoking a revoked session is a no-op.
func (r *PostgresRepository) RevokeByTokenHash(ctx context.Context, tokenHash, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked = TRUE, revoked_at = $2, revoke_reason = $3
		WHERE token_hash = $1 AND NOT revoked`, tokenHash, at, reason)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RevokeAllByDID revokes every unrevoked session of did and returns how many changed.
func (r *PostgresRepository) RevokeAllByDID(ctx context.Context, did, reason string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked = TRUE, revoked_at = $2, revoke_reason = $3
		WHERE did = $1 AND NOT revoked`, did, at, reason)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
