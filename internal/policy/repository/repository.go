package repository

import (
	"context"

	"didlink/internal/policy/domain"
)

// Repository defines persistence for session policies.
type Repository interface {
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
	// Upsert creates the policy or replaces the rules and enabled flag of the one with the same name.
	Upsert(ctx context.Context, p *domain.Policy) error
}
