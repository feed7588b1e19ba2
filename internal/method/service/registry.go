// Package service owns the auth method lifecycle: Pending → Active → Revoked, with activation
// anchored on the identity ledger.
package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"didlink/internal/attempt"
	attemptdomain "didlink/internal/attempt/domain"
	"didlink/internal/autherr"
	"didlink/internal/credential"
	"didlink/internal/did"
	"didlink/internal/ledger"
	"didlink/internal/method/domain"
	methodrepo "didlink/internal/method/repository"
	"didlink/internal/recovery"
	recoverydomain "didlink/internal/recovery/domain"
	"didlink/internal/telemetry"
)

// RecoveryStore replaces a DID's recovery codes.
type RecoveryStore interface {
	ReplaceForDID(ctx context.Context, did string, codes []*recoverydomain.RecoveryCode, at time.Time) error
}

// Sealer encrypts method secrets at rest.
type Sealer interface {
	SealString(did string, plaintext []byte) (string, error)
	OpenString(did, stored string) ([]byte, error)
}

// ProofVerifier checks proof-of-control tokens.
type ProofVerifier interface {
	Verify(ctx context.Context, did, token string) (*ledger.Identity, error)
}

// Verifiers resolves the credential strategy of a method type.
type Verifiers interface {
	For(t domain.MethodType) (credential.Strategy, error)
}

// AttemptGate rate-limits and records verification attempts.
type AttemptGate interface {
	Check(ctx context.Context, k attempt.Key) error
	Record(ctx context.Context, k attempt.Key, err error)
}

// Deps are the collaborators of a Registry. Events may be nil.
type Deps struct {
	Methods   methodrepo.Repository
	Recovery  RecoveryStore
	Vault     Sealer
	Proofs    ProofVerifier
	Ledger    ledger.Client
	Verifiers Verifiers
	Attempts  AttemptGate
	Events    telemetry.EventEmitter
	Now       func() time.Time
}

// Registry implements the method lifecycle operations.
type Registry struct {
	methods   methodrepo.Repository
	recovery  RecoveryStore
	vault     Sealer
	proofs    ProofVerifier
	ledger    ledger.Client
	verifiers Verifiers
	attempts  AttemptGate
	events    telemetry.EventEmitter
	now       func() time.Time
}

// NewRegistry returns a Registry using d.
func NewRegistry(d Deps) *Registry {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		methods:   d.Methods,
		recovery:  d.Recovery,
		vault:     d.Vault,
		proofs:    d.Proofs,
		ledger:    d.Ledger,
		verifiers: d.Verifiers,
		attempts:  d.Attempts,
		events:    d.Events,
		now:       now,
	}
}

// BeginInput starts the setup of a method.
type BeginInput struct {
	DID        string
	MethodType domain.MethodType
	Proof      string
}

// BeginResult carries the one-time setup material.
type BeginResult struct {
	MethodID   string
	MethodType domain.MethodType
	// TOTP is set for TOTP methods, together with BackupCodes.
	TOTP        *credential.TOTPSetup
	BackupCodes []string
	// AuthorizationURL and State are set for OAuth methods.
	AuthorizationURL     string
	State                string
	VerificationRequired bool
}

// BeginSetup creates a Pending method with fresh sealed material. An abandoned pending method of
// the same type is revoked and replaced; an active one is a Conflict.
func (r *Registry) BeginSetup(ctx context.Context, in BeginInput) (*BeginResult, error) {
	if err := did.Validate(in.DID); err != nil {
		return nil, err
	}
	strategy, err := r.verifiers.For(in.MethodType)
	if err != nil {
		return nil, err
	}
	if _, err := r.proofs.Verify(ctx, in.DID, in.Proof); err != nil {
		return nil, err
	}
	live, err := r.methods.GetLive(ctx, in.DID, in.MethodType)
	if err != nil {
		return nil, autherr.Internal("method lookup failed", err)
	}
	if live.IsActive() {
		return nil, autherr.Conflict("an active method of this type already exists")
	}

	now := r.now().UTC()
	id := uuid.New().String()
	enr, err := strategy.Enroll(ctx, credential.EnrollInput{DID: in.DID, MethodID: id})
	if err != nil {
		return nil, err
	}
	m := &domain.AuthMethod{
		ID:            id,
		DID:           in.DID,
		Type:          in.MethodType,
		PublicKeyHash: enr.PublicKeyHash,
		Status:        domain.StatusPending,
		CreatedAt:     now,
	}
	if len(enr.Secret) > 0 {
		if m.EncryptedSecret, err = r.vault.SealString(in.DID, enr.Secret); err != nil {
			return nil, err
		}
	}
	if err := r.methods.ReplacePending(ctx, m); err != nil {
		if errors.Is(err, methodrepo.ErrLiveMethodExists) {
			return nil, autherr.Conflict("an active method of this type already exists")
		}
		return nil, autherr.Internal("method setup failed", err)
	}
	if len(enr.RecoveryCodes) > 0 {
		rows := make([]*recoverydomain.RecoveryCode, len(enr.RecoveryCodes))
		for i, code := range enr.RecoveryCodes {
			rows[i] = &recoverydomain.RecoveryCode{
				ID:        uuid.New().String(),
				DID:       in.DID,
				MethodID:  id,
				CodeHash:  recovery.HashCode(in.DID, code),
				CreatedAt: now,
			}
		}
		if err := r.recovery.ReplaceForDID(ctx, in.DID, rows, now); err != nil {
			return nil, autherr.Internal("method setup failed", err)
		}
	}

	r.emit(ctx, telemetry.EventMethodSetupStarted, m, nil)
	return &BeginResult{
		MethodID:             id,
		MethodType:           in.MethodType,
		TOTP:                 enr.TOTP,
		BackupCodes:          enr.RecoveryCodes,
		AuthorizationURL:     enr.AuthorizationURL,
		State:                enr.State,
		VerificationRequired: true,
	}, nil
}

// CompleteInput presents the first credential of a pending method.
type CompleteInput struct {
	DID        string
	MethodID   string
	Proof      string
	Credential credential.Credential
	IP         string
}

// CompleteResult describes an activated, anchored method.
type CompleteResult struct {
	MethodID    string
	MethodType  domain.MethodType
	LedgerTx    string
	IsPrimary   bool
	Attestation credential.Attestation
}

// CompleteSetup verifies the credential, activates the method with a conditional write and anchors
// the linkage on the ledger. If anchoring fails the activation is compensated by revoking the method.
// Once the input is well formed the call is gated and recorded, so proof and ownership failures
// count toward the lockout like a wrong code.
//
// TOTP requires a proof of control. For OAuth the proof is optional: the state being consumed was
// only issued by BeginSetup after a proof check, and is bound to this DID and method.
func (r *Registry) CompleteSetup(ctx context.Context, in CompleteInput) (*CompleteResult, error) {
	if err := did.Validate(in.DID); err != nil {
		return nil, err
	}
	if in.MethodID == "" {
		return nil, autherr.Validation("method_id is required")
	}
	m, err := r.methods.GetByID(ctx, in.MethodID)
	if err != nil {
		return nil, autherr.Internal("method lookup failed", err)
	}

	key := attempt.Key{DID: in.DID, IP: in.IP, Action: attemptdomain.ActionSetupVerify}
	if m != nil {
		key.MethodType = string(m.Type)
		if m.Type.IsOAuth() {
			key.Action = attemptdomain.ActionOAuthCallback
		}
	}
	if err := r.gate(ctx, key); err != nil {
		return nil, err
	}
	out, err := r.completeSetup(ctx, m, in)
	r.attempts.Record(ctx, key, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) completeSetup(ctx context.Context, m *domain.AuthMethod, in CompleteInput) (*CompleteResult, error) {
	if m == nil || m.DID != in.DID || m.Status == domain.StatusRevoked {
		return nil, autherr.NotFound("method not found")
	}
	if in.Proof != "" || !m.Type.IsOAuth() {
		if _, err := r.proofs.Verify(ctx, in.DID, in.Proof); err != nil {
			return nil, err
		}
	}
	if m.Status == domain.StatusActive {
		return nil, autherr.Conflict("method already active")
	}
	strategy, err := r.verifiers.For(m.Type)
	if err != nil {
		return nil, err
	}
	return r.activate(ctx, strategy, m, in.Credential)
}

func (r *Registry) activate(ctx context.Context, strategy credential.Strategy, m *domain.AuthMethod, cred credential.Credential) (*CompleteResult, error) {
	secret, err := r.open(m)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	res, err := strategy.Verify(ctx, credential.VerifyInput{
		Purpose:    credential.PurposeSetup,
		Method:     m,
		Secret:     secret,
		Credential: cred,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	act := methodrepo.Activation{PublicKeyHash: res.PublicKeyHash, Step: res.Step, At: now}
	if len(res.Material) > 0 {
		if act.EncryptedSecret, err = r.vault.SealString(m.DID, res.Material); err != nil {
			return nil, err
		}
	}
	active, err := r.methods.Activate(ctx, m.ID, act)
	if errors.Is(err, methodrepo.ErrNotPending) {
		return nil, autherr.Conflict("method already active")
	}
	if err != nil {
		return nil, autherr.Internal("activation failed", err)
	}

	txRef, err := r.ledger.SubmitMethodLinkage(ctx, ledger.Linkage{
		DID:           active.DID,
		MethodID:      active.ID,
		MethodType:    string(active.Type),
		PublicKeyHash: active.PublicKeyHash,
	})
	if err != nil {
		r.compensate(ctx, active.ID, err)
		if autherr.KindOf(err) == autherr.KindUpstream {
			return nil, err
		}
		return nil, autherr.Upstream("ledger anchoring failed", err)
	}
	if err := r.methods.SetLedgerTx(ctx, active.ID, txRef); err != nil {
		r.compensate(ctx, active.ID, err)
		return nil, autherr.Internal("activation failed", err)
	}
	active.LedgerTxRef = txRef

	meta := res.Attestation.Metadata()
	meta["ledger_tx"] = txRef
	meta["is_primary"] = strconv.FormatBool(active.IsPrimary)
	r.emit(ctx, telemetry.EventMethodActivated, active, meta)
	return &CompleteResult{
		MethodID:    active.ID,
		MethodType:  active.Type,
		LedgerTx:    txRef,
		IsPrimary:   active.IsPrimary,
		Attestation: res.Attestation,
	}, nil
}

// compensate reverts an activation that could not be anchored.
func (r *Registry) compensate(ctx context.Context, id string, cause error) {
	log.Printf("method: anchoring %s failed, revoking: %v", id, cause)
	if _, err := r.methods.Revoke(context.WithoutCancel(ctx), id, r.now().UTC()); err != nil {
		log.Printf("method: compensating revoke of %s failed: %v", id, err)
	}
}

// RevokeInput revokes one method of a DID.
type RevokeInput struct {
	DID      string
	MethodID string
	Proof    string
}

// RevokeResult reports whether this call changed the method. Repeat calls are a successful no-op.
type RevokeResult struct {
	MethodID string
	Revoked  bool
}

// Revoke moves a Pending or Active method to Revoked. Sessions bound to it stop validating
// because validation re-checks the method.
func (r *Registry) Revoke(ctx context.Context, in RevokeInput) (*RevokeResult, error) {
	if err := did.Validate(in.DID); err != nil {
		return nil, err
	}
	if in.MethodID == "" {
		return nil, autherr.Validation("method_id is required")
	}
	if _, err := r.proofs.Verify(ctx, in.DID, in.Proof); err != nil {
		return nil, err
	}
	m, err := r.methods.GetByID(ctx, in.MethodID)
	if err != nil {
		return nil, autherr.Internal("method lookup failed", err)
	}
	if m == nil || m.DID != in.DID {
		return nil, autherr.NotFound("method not found")
	}
	changed, err := r.methods.Revoke(ctx, m.ID, r.now().UTC())
	if err != nil {
		return nil, autherr.Internal("revoke failed", err)
	}
	if changed {
		r.emit(ctx, telemetry.EventMethodRevoked, m, nil)
	}
	return &RevokeResult{MethodID: m.ID, Revoked: changed}, nil
}

// List returns the DID's pending and active methods, oldest first. The caller must prove control of the DID.
func (r *Registry) List(ctx context.Context, didValue, proof string) ([]*domain.AuthMethod, error) {
	if err := did.Validate(didValue); err != nil {
		return nil, err
	}
	if _, err := r.proofs.Verify(ctx, didValue, proof); err != nil {
		return nil, err
	}
	list, err := r.methods.ListByDID(ctx, didValue)
	if err != nil {
		return nil, autherr.Internal("method lookup failed", err)
	}
	return list, nil
}

// IsUsable reports whether methodID is Active and anchored. Unknown ids are not usable.
func (r *Registry) IsUsable(ctx context.Context, methodID string) (bool, error) {
	m, err := r.methods.GetByID(ctx, methodID)
	if err != nil {
		return false, autherr.Internal("method lookup failed", err)
	}
	return m.IsUsable(), nil
}

// AuthenticateInput presents a login credential for the DID's method of MethodType.
type AuthenticateInput struct {
	DID        string
	MethodType domain.MethodType
	Credential credential.Credential
}

// Authenticate verifies a login credential against the DID's usable method of the given type.
// Rate limiting is the caller's concern.
func (r *Registry) Authenticate(ctx context.Context, in AuthenticateInput) (*domain.AuthMethod, *credential.Result, error) {
	strategy, err := r.verifiers.For(in.MethodType)
	if err != nil {
		return nil, nil, err
	}
	m, err := r.methods.GetLive(ctx, in.DID, in.MethodType)
	if err != nil {
		return nil, nil, autherr.Internal("method lookup failed", err)
	}
	if !m.IsUsable() {
		return nil, nil, autherr.NotFound("no active method of this type")
	}
	secret, err := r.open(m)
	if err != nil {
		return nil, nil, err
	}
	now := r.now().UTC()
	res, err := strategy.Verify(ctx, credential.VerifyInput{
		Purpose:    credential.PurposeSession,
		Method:     m,
		Secret:     secret,
		Credential: in.Credential,
		Now:        now,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := r.methods.Touch(ctx, m.ID, now); err != nil {
		log.Printf("method: touch %s: %v", m.ID, err)
	}
	return m, res, nil
}

func (r *Registry) gate(ctx context.Context, key attempt.Key) error {
	if err := r.attempts.Check(ctx, key); err != nil {
		if errors.Is(err, autherr.ErrRateLimited) {
			ev := telemetry.NewEvent(telemetry.EventRateLimited)
			ev.DID = key.DID
			ev.MethodType = key.MethodType
			ev.Metadata = map[string]string{"action": string(key.Action)}
			telemetry.EmitAsync(r.events, ctx, ev)
		}
		return err
	}
	return nil
}

func (r *Registry) open(m *domain.AuthMethod) ([]byte, error) {
	if m.EncryptedSecret == "" {
		return nil, nil
	}
	return r.vault.OpenString(m.DID, m.EncryptedSecret)
}

func (r *Registry) emit(ctx context.Context, eventType string, m *domain.AuthMethod, meta map[string]string) {
	ev := telemetry.NewEvent(eventType)
	ev.DID = m.DID
	ev.MethodID = m.ID
	ev.MethodType = string(m.Type)
	ev.Metadata = meta
	telemetry.EmitAsync(r.events, ctx, ev)
}
