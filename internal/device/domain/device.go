package domain

import "time"

// TrustedDevice is a remembered client. Only the hash of its device token is stored.
type TrustedDevice struct {
	ID          string
	DID         string
	Fingerprint string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	Revoked     bool
	RevokedAt   *time.Time
}

// TrustedFor reports whether the device is unrevoked, unexpired at now and bound to did and fingerprint.
func (d *TrustedDevice) TrustedFor(did, fingerprint string, now time.Time) bool {
	if d == nil || d.Revoked || fingerprint == "" {
		return false
	}
	return d.DID == did && d.Fingerprint == fingerprint && now.Before(d.ExpiresAt)
}
