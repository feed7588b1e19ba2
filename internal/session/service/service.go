// Package service issues, validates and revokes sessions backed by an active auth method.
package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"didlink/internal/attempt"
	attemptdomain "didlink/internal/attempt/domain"
	"didlink/internal/autherr"
	"didlink/internal/credential"
	"didlink/internal/device/domain"
	devicerepo "didlink/internal/device/repository"
	"didlink/internal/did"
	"didlink/internal/ledger"
	methoddomain "didlink/internal/method/domain"
	methodservice "didlink/internal/method/service"
	"didlink/internal/policy/engine"
	"didlink/internal/security"
	"didlink/internal/session"
	sessiondomain "didlink/internal/session/domain"
	sessionrepo "didlink/internal/session/repository"
	"didlink/internal/telemetry"
)

const deviceTokenBytes = 32

// Methods is the slice of the method registry sessions depend on.
type Methods interface {
	Authenticate(ctx context.Context, in methodservice.AuthenticateInput) (*methoddomain.AuthMethod, *credential.Result, error)
	IsUsable(ctx context.Context, methodID string) (bool, error)
}

// Identities reads DID records from the ledger. Results must not be cached.
type Identities interface {
	GetIdentity(ctx context.Context, did string) (*ledger.Identity, error)
}

// ProofVerifier checks optional proof-of-control tokens.
type ProofVerifier interface {
	Verify(ctx context.Context, did, token string) (*ledger.Identity, error)
}

// AttemptGate rate-limits and records session-create attempts.
type AttemptGate interface {
	Check(ctx context.Context, k attempt.Key) error
	Record(ctx context.Context, k attempt.Key, err error)
}

// Lifetimes holds the session and device-trust durations.
type Lifetimes struct {
	TOTP        time.Duration
	OAuth       time.Duration
	DeviceTrust time.Duration
}

// DefaultLifetimes returns 24h for TOTP, 12h for OAuth and 30 days of device trust.
func DefaultLifetimes() Lifetimes {
	return Lifetimes{TOTP: 24 * time.Hour, OAuth: 12 * time.Hour, DeviceTrust: 30 * 24 * time.Hour}
}

func (l Lifetimes) forType(t methoddomain.MethodType) time.Duration {
	if t.IsOAuth() {
		return l.OAuth
	}
	return l.TOTP
}

// Deps are the collaborators of a Service. Proofs and Events may be nil.
type Deps struct {
	Sessions    sessionrepo.Repository
	Devices     devicerepo.Repository
	Methods     Methods
	Identities  Identities
	Proofs      ProofVerifier
	Attempts    AttemptGate
	Permissions engine.Evaluator
	Signer      *session.Signer
	Lifetimes   Lifetimes
	Events      telemetry.EventEmitter
	Now         func() time.Time
}

// Service implements session create, validate and revoke.
type Service struct {
	sessions    sessionrepo.Repository
	devices     devicerepo.Repository
	methods     Methods
	identities  Identities
	proofs      ProofVerifier
	attempts    AttemptGate
	permissions engine.Evaluator
	signer      *session.Signer
	lifetimes   Lifetimes
	events      telemetry.EventEmitter
	now         func() time.Time
	issued      metric.Int64Counter
}

// NewService returns a Service using d.
func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	issued, err := otel.Meter("didlink").Int64Counter("didlink.sessions.issued",
		metric.WithDescription("Sessions issued by method type"))
	if err != nil {
		log.Printf("session: counter: %v", err)
	}
	return &Service{
		sessions:    d.Sessions,
		devices:     d.Devices,
		methods:     d.Methods,
		identities:  d.Identities,
		proofs:      d.Proofs,
		attempts:    d.Attempts,
		permissions: d.Permissions,
		signer:      d.Signer,
		lifetimes:   d.Lifetimes,
		events:      d.Events,
		now:         now,
		issued:      issued,
	}
}

// CreateInput is a login request.
type CreateInput struct {
	DID               string
	MethodType        methoddomain.MethodType
	Credential        credential.Credential
	Proof             string
	DeviceFingerprint string
	DeviceToken       string
	RememberDevice    bool
	IP                string
}

// CreateResult carries the new bearer token and, when a device was remembered, its device token.
type CreateResult struct {
	Token           string
	SessionID       string
	ExpiresAt       time.Time
	MethodID        string
	MethodType      methoddomain.MethodType
	Permissions     []string
	TrustedDevice   bool
	DeviceToken     string
	DeviceExpiresAt *time.Time
}

// Create verifies a credential against the DID's active method of the requested type and issues a session.
// The attempt is gated before the credential is checked and recorded whatever the outcome.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := did.Validate(in.DID); err != nil {
		return nil, err
	}
	if err := in.MethodType.Validate(); err != nil {
		return nil, err
	}
	if in.RememberDevice && in.DeviceFingerprint == "" {
		return nil, autherr.Validation("device_fingerprint is required to remember a device")
	}

	key := attempt.Key{DID: in.DID, IP: in.IP, MethodType: string(in.MethodType), Action: attemptdomain.ActionSessionCreate}
	if err := s.attempts.Check(ctx, key); err != nil {
		if errors.Is(err, autherr.ErrRateLimited) {
			ev := telemetry.NewEvent(telemetry.EventRateLimited)
			ev.DID = in.DID
			ev.MethodType = string(in.MethodType)
			ev.Metadata = map[string]string{"action": string(key.Action)}
			telemetry.EmitAsync(s.events, ctx, ev)
		}
		return nil, err
	}
	out, err := s.create(ctx, in)
	s.attempts.Record(ctx, key, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := s.checkIdentity(ctx, in.DID, in.Proof); err != nil {
		return nil, err
	}
	m, verified, err := s.methods.Authenticate(ctx, methodservice.AuthenticateInput{
		DID:        in.DID,
		MethodType: in.MethodType,
		Credential: in.Credential,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ttl := s.lifetimes.forType(m.Type)
	trusted := false
	if in.DeviceToken != "" && in.DeviceFingerprint != "" {
		dev, err := s.devices.GetByTokenHash(ctx, security.HashToken(in.DeviceToken))
		if err != nil {
			return nil, autherr.Internal("session store unavailable", err)
		}
		if dev.TrustedFor(in.DID, in.DeviceFingerprint, now) {
			trusted = true
			ttl *= 2
		}
	}
	perms, err := s.permissions.Permissions(ctx, engine.Input{DID: in.DID, MethodType: string(m.Type), TrustedDevice: trusted})
	if err != nil {
		return nil, autherr.Internal("permission evaluation failed", err)
	}

	payload, err := session.NewPayload(in.DID, m.ID, string(m.Type), in.DeviceFingerprint, now, ttl)
	if err != nil {
		return nil, autherr.Internal("session issue failed", err)
	}
	token, err := s.signer.Sign(payload)
	if err != nil {
		return nil, autherr.Internal("session issue failed", err)
	}
	row := &sessiondomain.Session{
		ID:                uuid.New().String(),
		DID:               in.DID,
		MethodID:          m.ID,
		MethodType:        string(m.Type),
		TokenHash:         security.HashToken(token),
		DeviceFingerprint: in.DeviceFingerprint,
		TrustedDevice:     trusted,
		ClientIP:          in.IP,
		IssuedAt:          now,
		ExpiresAt:         payload.Expiry(),
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, autherr.Internal("session issue failed", err)
	}

	out := &CreateResult{
		Token:         token,
		SessionID:     row.ID,
		ExpiresAt:     row.ExpiresAt,
		MethodID:      m.ID,
		MethodType:    m.Type,
		Permissions:   perms,
		TrustedDevice: trusted,
	}
	if in.RememberDevice {
		devToken, devExpiry, err := s.rememberDevice(ctx, in.DID, in.DeviceFingerprint, now)
		if err != nil {
			log.Printf("session: remember device for %s: %v", row.ID, err)
		} else {
			out.DeviceToken = devToken
			out.DeviceExpiresAt = &devExpiry
		}
	}

	if s.issued != nil {
		s.issued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method_type", string(m.Type)),
			attribute.Bool("trusted_device", trusted),
		))
	}
	ev := telemetry.NewEvent(telemetry.EventSessionIssued)
	ev.DID = in.DID
	ev.MethodID = m.ID
	ev.MethodType = string(m.Type)
	ev.SessionID = row.ID
	ev.Metadata = verified.Attestation.Metadata()
	ev.Metadata["trusted_device"] = strconv.FormatBool(trusted)
	telemetry.EmitAsync(s.events, ctx, ev)
	return out, nil
}

// checkIdentity verifies the proof when one is given; otherwise it only requires the DID not to be deactivated.
func (s *Service) checkIdentity(ctx context.Context, didValue, proof string) error {
	if proof != "" && s.proofs != nil {
		_, err := s.proofs.Verify(ctx, didValue, proof)
		return err
	}
	identity, err := s.identities.GetIdentity(ctx, didValue)
	if err != nil {
		return err
	}
	if identity.Deactivated {
		return autherr.Unauthorized("identity deactivated")
	}
	return nil
}

// rememberDevice issues a device-trust token. Only its hash is stored.
func (s *Service) rememberDevice(ctx context.Context, didValue, fingerprint string, now time.Time) (string, time.Time, error) {
	token, err := security.RandomToken(deviceTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := now.Add(s.lifetimes.DeviceTrust)
	err = s.devices.Create(ctx, &domain.TrustedDevice{
		ID:          uuid.New().String(),
		DID:         didValue,
		Fingerprint: fingerprint,
		TokenHash:   security.HashToken(token),
		ExpiresAt:   expires,
		CreatedAt:   now,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// ValidateInput checks a token and optionally rotates it.
type ValidateInput struct {
	Token   string
	Refresh bool
}

// ValidateResult reports the outcome. Invalid tokens are Valid=false with no error.
type ValidateResult struct {
	Valid       bool
	DID         string
	MethodID    string
	MethodType  string
	ExpiresAt   time.Time
	NewToken    string
	Permissions []string
}

// Validate checks signature, expiry, the stored session, the method and the ledger identity.
// Storage failures are Internal and ledger failures Upstream; every other rejection is Valid=false.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (*ValidateResult, error) {
	invalid := &ValidateResult{Valid: false}
	if in.Token == "" {
		return nil, autherr.Validation("session_token is required")
	}
	p, err := s.signer.Parse(in.Token)
	if err != nil {
		return invalid, nil
	}
	now := s.now().UTC()
	if !now.Before(p.Expiry()) {
		return invalid, nil
	}
	hash := security.HashToken(in.Token)
	row, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, autherr.Internal("session store unavailable", err)
	}
	if !row.IsLive(now) || row.DID != p.DID || row.MethodID != p.MethodID {
		return invalid, nil
	}
	usable, err := s.methods.IsUsable(ctx, p.MethodID)
	if err != nil {
		return nil, err
	}
	if !usable {
		return invalid, nil
	}
	identity, err := s.identities.GetIdentity(ctx, p.DID)
	if errors.Is(err, autherr.ErrNotFound) {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}
	if identity.Deactivated {
		return invalid, nil
	}
	perms, err := s.permissions.Permissions(ctx, engine.Input{DID: p.DID, MethodType: p.MethodType, TrustedDevice: row.TrustedDevice})
	if err != nil {
		return nil, autherr.Internal("permission evaluation failed", err)
	}

	out := &ValidateResult{
		Valid:       true,
		DID:         p.DID,
		MethodID:    p.MethodID,
		MethodType:  p.MethodType,
		ExpiresAt:   p.Expiry(),
		Permissions: perms,
	}
	if !in.Refresh {
		return out, nil
	}

	next, err := session.NewPayload(p.DID, p.MethodID, p.MethodType, p.DeviceFingerprint, now, p.Lifetime())
	if err != nil {
		return nil, autherr.Internal("session refresh failed", err)
	}
	token, err := s.signer.Sign(next)
	if err != nil {
		return nil, autherr.Internal("session refresh failed", err)
	}
	rotated, err := s.sessions.Rotate(ctx, hash, security.HashToken(token), next.Expiry(), now)
	if err != nil {
		return nil, autherr.Internal("session refresh failed", err)
	}
	if !rotated {
		return invalid, nil
	}
	out.NewToken = token
	out.ExpiresAt = next.Expiry()
	return out, nil
}

// RevokeInput selects what to revoke. At least one of Token or DeviceToken is required;
// RevokeAll needs a live Token to identify the DID.
type RevokeInput struct {
	Token       string
	RevokeAll   bool
	DeviceToken string
}

// RevokeResult counts what changed.
type RevokeResult struct {
	Sessions int
	Devices  int
}

// Revoke performs logical revocations; rows are kept for audit. Repeating a revocation counts zero.
func (s *Service) Revoke(ctx context.Context, in RevokeInput) (*RevokeResult, error) {
	if in.Token == "" && in.DeviceToken == "" {
		return nil, autherr.Validation("session_token or device_token is required")
	}
	if in.RevokeAll && in.Token == "" {
		return nil, autherr.Validation("revoke_all requires session_token")
	}
	now := s.now().UTC()
	out := &RevokeResult{}
	var didValue string

	if in.Token != "" {
		p, err := s.signer.Parse(in.Token)
		if err != nil {
			return nil, err
		}
		didValue = p.DID
		hash := security.HashToken(in.Token)
		if in.RevokeAll {
			row, err := s.sessions.GetByTokenHash(ctx, hash)
			if err != nil {
				return nil, autherr.Internal("session store unavailable", err)
			}
			if !row.IsLive(now) {
				return nil, autherr.Unauthorized("session is not active")
			}
			n, err := s.sessions.RevokeAllByDID(ctx, p.DID, sessiondomain.ReasonRevokeAll, now)
			if err != nil {
				return nil, autherr.Internal("revoke failed", err)
			}
			out.Sessions = n
		} else {
			ok, err := s.sessions.RevokeByTokenHash(ctx, hash, sessiondomain.ReasonLogout, now)
			if err != nil {
				return nil, autherr.Internal("revoke failed", err)
			}
			if ok {
				out.Sessions = 1
			}
		}
	}
	if in.DeviceToken != "" {
		ok, err := s.devices.RevokeByTokenHash(ctx, security.HashToken(in.DeviceToken), now)
		if err != nil {
			return nil, autherr.Internal("revoke failed", err)
		}
		if ok {
			out.Devices = 1
		}
	}

	if out.Sessions > 0 || out.Devices > 0 {
		ev := telemetry.NewEvent(telemetry.EventSessionRevoked)
		ev.DID = didValue
		ev.Metadata = map[string]string{
			"sessions":   strconv.Itoa(out.Sessions),
			"devices":    strconv.Itoa(out.Devices),
			"revoke_all": strconv.FormatBool(in.RevokeAll),
		}
		telemetry.EmitAsync(s.events, ctx, ev)
	}
	return out, nil
}
