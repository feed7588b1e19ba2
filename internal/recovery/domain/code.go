package domain

import "time"

// RecoveryCode is a single-use backup code issued with a TOTP method. Only the hash is stored.
type RecoveryCode struct {
	ID         string
	DID        string
	MethodID   string
	CodeHash   string
	Consumed   bool
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
