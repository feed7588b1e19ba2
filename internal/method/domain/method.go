package domain

import (
	"strings"
	"time"

	"didlink/internal/autherr"
)

// MethodType identifies a factor family: "totp" or "oauth:<provider>".
type MethodType string

const (
	MethodTypeTOTP MethodType = "totp"

	oauthPrefix = "oauth:"
)

// Family names used for rate-limit buckets and strategy lookup.
const (
	FamilyTOTP  = "totp"
	FamilyOAuth = "oauth"
)

// OAuthMethodType returns the method type for an OAuth provider.
func OAuthMethodType(provider string) MethodType {
	return MethodType(oauthPrefix + provider)
}

// IsOAuth reports whether t is a federated OAuth method.
func (t MethodType) IsOAuth() bool { return strings.HasPrefix(string(t), oauthPrefix) }

// Provider returns the OAuth provider name, or "" for non-OAuth types.
func (t MethodType) Provider() string {
	if !t.IsOAuth() {
		return ""
	}
	return strings.TrimPrefix(string(t), oauthPrefix)
}

// Family returns FamilyTOTP or FamilyOAuth; empty for unknown types.
func (t MethodType) Family() string {
	switch {
	case t == MethodTypeTOTP:
		return FamilyTOTP
	case t.IsOAuth() && t.Provider() != "":
		return FamilyOAuth
	default:
		return ""
	}
}

// Validate checks the syntax of t. Whether a provider is configured is checked by the verifier.
func (t MethodType) Validate() error {
	if t == "" {
		return autherr.Validation("method_type is required")
	}
	if t.Family() == "" {
		return autherr.Validation("unsupported method_type")
	}
	return nil
}

// Status is the lifecycle state of an AuthMethod: Pending → Active → Revoked.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// AuthMethod is a factor bound to a DID.
type AuthMethod struct {
	ID   string
	DID  string
	Type MethodType
	// EncryptedSecret is the vault-sealed TOTP secret or OAuth token bundle; empty for a pending OAuth method.
	EncryptedSecret string
	// PublicKeyHash is a non-reversible fingerprint of the factor, anchored on the ledger.
	PublicKeyHash string
	Status        Status
	IsPrimary     bool
	// LedgerTxRef is set once the activation has been anchored.
	LedgerTxRef string
	// LastUsedStep is the last consumed TOTP time step; nil until first use.
	LastUsedStep *int64
	CreatedAt    time.Time
	ActivatedAt  *time.Time
	LastUsedAt   *time.Time
	RevokedAt    *time.Time
}

// IsActive reports whether the method is in the Active state.
func (m *AuthMethod) IsActive() bool { return m != nil && m.Status == StatusActive }

// IsUsable reports whether the method may authenticate: Active and anchored on the ledger.
func (m *AuthMethod) IsUsable() bool { return m.IsActive() && m.LedgerTxRef != "" }
