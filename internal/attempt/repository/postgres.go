package repository

import (
	"context"
	"database/sql"
	"fmt"

	"didlink/internal/attempt/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an attempt repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one attempt row. The attempt must have ID set.
func (r *PostgresRepository) Append(ctx context.Context, a *domain.AuthAttempt) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO auth_attempts
		(id, did, ip, method_type, action, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.DID, a.IP, a.MethodType, string(a.Action), a.Success, a.FailureReason, a.CreatedAt)
	return err
}

func bucketClause(b Bucket) (string, error) {
	switch b {
	case BucketTOTP:
		return `method_type = 'totp'`, nil
	case BucketOAuth:
		return `method_type LIKE 'oauth:%'`, nil
	case BucketSessionCreate:
		return `action = 'session_create'`, nil
	}
	return "", fmt.Errorf("attempt: unknown bucket %q", b)
}

// CountFailures runs a range read over the (did, ip, created_at) index.
func (r *PostgresRepository) CountFailures(ctx context.Context, f Filter) (int, error) {
	clause, err := bucketClause(f.Bucket)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx, `SELECT count(*) FROM auth_attempts
		WHERE did = $1 AND ip = $2 AND created_at > $3 AND NOT success
		AND failure_reason NOT IN ('upstream_failure', 'internal', 'rate_limited')
		AND `+clause, f.DID, f.IP, f.Since).Scan(&n)
	return n, err
}
