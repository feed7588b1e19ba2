package domain

import "time"

// Revoke reasons stored on the session row.
const (
	ReasonLogout    = "logout"
	ReasonRevokeAll = "revoke_all"
)

// Session is an issued bearer token, stored by the hash of the token only.
type Session struct {
	ID                string
	DID               string
	MethodID          string
	MethodType        string
	TokenHash         string
	DeviceFingerprint string
	// TrustedDevice is set when a device token doubled the lifetime at issue.
	TrustedDevice bool
	ClientIP      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RefreshedAt   *time.Time
	Revoked       bool
	RevokedAt     *time.Time
	RevokeReason  string
}

// IsLive reports whether the session is unrevoked and unexpired at now.
func (s *Session) IsLive(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}
