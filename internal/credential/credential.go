// Package credential verifies presented factors. Each method type has one Strategy; adding an
// OAuth provider adds configuration, not code.
package credential

import (
	"context"
	"sort"
	"strconv"
	"time"

	"didlink/internal/autherr"
	"didlink/internal/method/domain"
)

// Purpose distinguishes activating a pending method from logging in with an active one.
type Purpose string

const (
	PurposeSetup   Purpose = "setup"
	PurposeSession Purpose = "session"
)

// Credential is what the caller presents. Which fields are read depends on the strategy.
type Credential struct {
	Code         string
	RecoveryCode string
	AuthCode     string
	State        string
}

// Attestation is a provider-agnostic record of a successful verification. It never holds secrets.
type Attestation struct {
	DID        string
	MethodID   string
	MethodType domain.MethodType
	VerifiedAt time.Time
	// EvidenceHash digests what was verified (step, recovery code hash or profile binding).
	EvidenceHash string
	Step         *int64
	Recovery     bool
}

// Metadata renders the attestation for auth events: evidence_hash, verified_at (RFC 3339),
// recovery and, for TOTP codes, step.
func (a Attestation) Metadata() map[string]string {
	meta := map[string]string{
		"evidence_hash": a.EvidenceHash,
		"verified_at":   a.VerifiedAt.UTC().Format(time.RFC3339),
		"recovery":      strconv.FormatBool(a.Recovery),
	}
	if a.Step != nil {
		meta["step"] = strconv.FormatInt(*a.Step, 10)
	}
	return meta
}

// EnrollInput describes a method being set up.
type EnrollInput struct {
	DID      string
	MethodID string
}

// TOTPSetup is returned once, at enrollment. The secret is never readable afterwards.
type TOTPSetup struct {
	Secret string
	URL    string
	// QRCode is a data:image/png;base64 URL of the otpauth URL.
	QRCode string
}

// Enrollment is the result of Strategy.Enroll.
type Enrollment struct {
	// Secret is the material to seal on the pending method; nil when there is nothing to store yet.
	Secret        []byte
	PublicKeyHash string
	TOTP          *TOTPSetup
	// RecoveryCodes are plaintext backup codes to hash, store and show once.
	RecoveryCodes    []string
	AuthorizationURL string
	State            string
}

// VerifyInput carries a verification request. Secret is the opened vault material of Method.
type VerifyInput struct {
	Purpose    Purpose
	Method     *domain.AuthMethod
	Secret     []byte
	Credential Credential
	Now        time.Time
}

// Result is returned on a pass.
type Result struct {
	Attestation Attestation
	// Step is the TOTP step matched by the code; the caller persists it on activation.
	Step          *int64
	PublicKeyHash string
	// Material replaces the sealed secret on activation (OAuth token bundle).
	Material []byte
}

// Strategy verifies one method type.
type Strategy interface {
	Enroll(ctx context.Context, in EnrollInput) (*Enrollment, error)
	Verify(ctx context.Context, in VerifyInput) (*Result, error)
}

// Registry maps method types to strategies.
type Registry struct {
	strategies map[domain.MethodType]Strategy
	oauth      map[string]*OAuthStrategy
}

// NewRegistry returns a Registry. totp may be nil to disable TOTP.
func NewRegistry(totp *TOTPStrategy, oauth ...*OAuthStrategy) *Registry {
	r := &Registry{strategies: map[domain.MethodType]Strategy{}, oauth: map[string]*OAuthStrategy{}}
	if totp != nil {
		r.strategies[domain.MethodTypeTOTP] = totp
	}
	for _, o := range oauth {
		r.strategies[domain.OAuthMethodType(o.Provider())] = o
		r.oauth[o.Provider()] = o
	}
	return r
}

// For returns the strategy for t, or a Validation error for unknown or unconfigured types.
func (r *Registry) For(t domain.MethodType) (Strategy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s, ok := r.strategies[t]
	if !ok {
		return nil, autherr.Validation("unsupported method_type")
	}
	return s, nil
}

// OAuth returns the strategy for provider.
func (r *Registry) OAuth(provider string) (*OAuthStrategy, error) {
	s, ok := r.oauth[provider]
	if !ok {
		return nil, autherr.NotFound("unknown oauth provider")
	}
	return s, nil
}

// Providers lists the configured OAuth providers in name order.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.oauth))
	for name := range r.oauth {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
