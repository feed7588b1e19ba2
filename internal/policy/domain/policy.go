package domain

import "time"

// Policy is a stored Rego module in package didlink.session that adds permission rules.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
