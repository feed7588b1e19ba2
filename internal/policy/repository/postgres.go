package repository

import (
	"context"
	"database/sql"

	"didlink/internal/policy/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListEnabled returns enabled policies ordered by name. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, rules, enabled, created_at
		FROM session_policies WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Upsert persists the policy keyed by name. The policy must have ID set; an existing row keeps its ID.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO session_policies (id, name, rules, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET rules = EXCLUDED.rules, enabled = EXCLUDED.enabled`,
		p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt)
	return err
}
