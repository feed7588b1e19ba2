package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"didlink/internal/db"
	"didlink/internal/method/domain"
)

const methodColumns = `id, did, method_type, encrypted_secret, public_key_hash, status, is_primary,
	ledger_tx_ref, last_used_step, created_at, activated_at, last_used_at, revoked_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an auth method repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the method for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuthMethod, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+methodColumns+` FROM auth_methods WHERE id = $1`, id)
	return scanOptional(row)
}

// GetLive returns the pending or active method of the given type for did, or nil.
func (r *PostgresRepository) GetLive(ctx context.Context, did string, t domain.MethodType) (*domain.AuthMethod, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+methodColumns+` FROM auth_methods
		WHERE did = $1 AND method_type = $2 AND status <> 'revoked'`, did, string(t))
	return scanOptional(row)
}

// ListByDID returns the non-revoked methods for did, oldest first.
func (r *PostgresRepository) ListByDID(ctx context.Context, did string) ([]*domain.AuthMethod, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+methodColumns+` FROM auth_methods
		WHERE did = $1 AND status <> 'revoked' ORDER BY created_at, id`, did)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuthMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplacePending revokes an abandoned pending method of the same type and inserts m in one transaction.
// The partial unique index on (did, method_type) turns a concurrent insert or an existing active method into ErrLiveMethodExists.
func (r *PostgresRepository) ReplacePending(ctx context.Context, m *domain.AuthMethod) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE auth_methods SET status = 'revoked', revoked_at = $3
		WHERE did = $1 AND method_type = $2 AND status = 'pending'`, m.DID, string(m.Type), m.CreatedAt); err != nil {
		return fmt.Errorf("revoke pending: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO auth_methods
		(id, did, method_type, encrypted_secret, public_key_hash, status, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', FALSE, $6)`,
		m.ID, m.DID, string(m.Type), m.EncryptedSecret, m.PublicKeyHash, m.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrLiveMethodExists
		}
		return fmt.Errorf("insert method: %w", err)
	}
	return tx.Commit()
}

// Activate performs the pending → active transition as a single conditional UPDATE.
func (r *PostgresRepository) Activate(ctx context.Context, id string, a Activation) (*domain.AuthMethod, error) {
	var step sql.NullInt64
	if a.Step != nil {
		step = sql.NullInt64{Int64: *a.Step, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, `UPDATE auth_methods AS m SET
			status = 'active',
			activated_at = $2,
			last_used_at = $2,
			public_key_hash = $3,
			encrypted_secret = CASE WHEN $4 = '' THEN m.encrypted_secret ELSE $4 END,
			last_used_step = $5,
			is_primary = NOT EXISTS (
				SELECT 1 FROM auth_methods p
				WHERE p.did = m.did AND p.status = 'active' AND p.is_primary AND p.id <> m.id
			)
		WHERE m.id = $1 AND m.status = 'pending'
		RETURNING `+methodColumns, id, a.At, a.PublicKeyHash, a.EncryptedSecret, step)
	m, err := scanMethod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotPending
	}
	return m, err
}

// SetLedgerTx records the ledger transaction that anchored the activation.
func (r *PostgresRepository) SetLedgerTx(ctx context.Context, id, txRef string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE auth_methods SET ledger_tx_ref = $2 WHERE id = $1`, id, txRef)
	return err
}

// ConsumeStep advances last_used_step only when step is newer, so a replayed code loses the race.
func (r *PostgresRepository) ConsumeStep(ctx context.Context, id string, step int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE auth_methods SET last_used_step = $2, last_used_at = $3
		WHERE id = $1 AND status = 'active' AND (last_used_step IS NULL OR last_used_step < $2)`, id, step, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Touch sets last_used_at.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE auth_methods SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Revoke marks the method revoked. Revoking an already revoked method is a no-op.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE auth_methods SET status = 'revoked', revoked_at = $2, is_primary = FALSE
		WHERE id = $1 AND status <> 'revoked'`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOptional(row *sql.Row) (*domain.AuthMethod, error) {
	m, err := scanMethod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func scanMethod(s rowScanner) (*domain.AuthMethod, error) {
	var m domain.AuthMethod
	var methodType, status string
	var ledgerTx sql.NullString
	var step sql.NullInt64
	var activatedAt, lastUsedAt, revokedAt sql.NullTime
	if err := s.Scan(&m.ID, &m.DID, &methodType, &m.EncryptedSecret, &m.PublicKeyHash, &status, &m.IsPrimary,
		&ledgerTx, &step, &m.CreatedAt, &activatedAt, &lastUsedAt, &revokedAt); err != nil {
		return nil, err
	}
	m.Type = domain.MethodType(methodType)
	m.Status = domain.Status(status)
	m.LedgerTxRef = ledgerTx.String
	if step.Valid {
		v := step.Int64
		m.LastUsedStep = &v
	}
	m.ActivatedAt = db.TimePtr(activatedAt)
	m.LastUsedAt = db.TimePtr(lastUsedAt)
	m.RevokedAt = db.TimePtr(revokedAt)
	return &m, nil
}
