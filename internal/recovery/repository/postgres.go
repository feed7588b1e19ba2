package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"didlink/internal/recovery/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a recovery code repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReplaceForDID retires old codes and stores the new set in one transaction.
func (r *PostgresRepository) ReplaceForDID(ctx context.Context, did string, codes []*domain.RecoveryCode, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE recovery_codes SET consumed = TRUE, consumed_at = $2
		WHERE did = $1 AND NOT consumed`, did, at); err != nil {
		return fmt.Errorf("retire codes: %w", err)
	}
	for _, c := range codes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO recovery_codes (id, did, method_id, code_hash, consumed, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)`, c.ID, did, c.MethodID, c.CodeHash, c.CreatedAt); err != nil {
			return fmt.Errorf("insert code: %w", err)
		}
	}
	return tx.Commit()
}

// Consume is a conditional update; of two concurrent uses of the same code only one sees a row.
func (r *PostgresRepository) Consume(ctx context.Context, did, codeHash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE recovery_codes SET consumed = TRUE, consumed_at = $3
		WHERE did = $1 AND code_hash = $2 AND NOT consumed`, did, codeHash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CountRemaining returns the number of unconsumed codes for did.
func (r *PostgresRepository) CountRemaining(ctx context.Context, did string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recovery_codes WHERE did = $1 AND NOT consumed`, did).Scan(&n)
	return n, err
}
