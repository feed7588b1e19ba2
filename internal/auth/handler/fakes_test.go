package handler

import (
	"context"
	"sync"
	"time"

	"didlink/internal/method/domain"
	methodservice "didlink/internal/method/service"
	sessionservice "didlink/internal/session/service"
)

type fakeMethods struct {
	mu       sync.Mutex
	begin    *methodservice.BeginInput
	complete *methodservice.CompleteInput
	revoke   *methodservice.RevokeInput
	listDID  string
	listed   []*domain.AuthMethod
	err      error
}

func (f *fakeMethods) BeginSetup(ctx context.Context, in methodservice.BeginInput) (*methodservice.BeginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begin = &in
	if f.err != nil {
		return nil, f.err
	}
	return &methodservice.BeginResult{MethodID: "m-1", MethodType: in.MethodType, BackupCodes: []string{"abcd-efgh"}, VerificationRequired: true}, nil
}

func (f *fakeMethods) CompleteSetup(ctx context.Context, in methodservice.CompleteInput) (*methodservice.CompleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete = &in
	if f.err != nil {
		return nil, f.err
	}
	return &methodservice.CompleteResult{MethodID: in.MethodID, MethodType: domain.MethodTypeTOTP, LedgerTx: "0xtx0001", IsPrimary: true}, nil
}

func (f *fakeMethods) Revoke(ctx context.Context, in methodservice.RevokeInput) (*methodservice.RevokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoke = &in
	if f.err != nil {
		return nil, f.err
	}
	return &methodservice.RevokeResult{MethodID: in.MethodID, Revoked: true}, nil
}

func (f *fakeMethods) List(ctx context.Context, did, proof string) ([]*domain.AuthMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listDID = did
	return f.listed, f.err
}

type fakeSessions struct {
	mu       sync.Mutex
	create   *sessionservice.CreateInput
	validate *sessionservice.ValidateInput
	revoke   *sessionservice.RevokeInput
	valid    bool
	err      error

	// remembered is returned as the device token of Create when RememberDevice is set.
	remembered string
}

func (f *fakeSessions) Create(ctx context.Context, in sessionservice.CreateInput) (*sessionservice.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.create = &in
	if f.err != nil {
		return nil, f.err
	}
	res := &sessionservice.CreateResult{
		Token:       "payload.sig",
		ExpiresAt:   time.Unix(1_900_000_000, 0).UTC(),
		MethodID:    "m-1",
		MethodType:  in.MethodType,
		Permissions: []string{"methods:read", "session:validate"},
	}
	if in.RememberDevice && f.remembered != "" {
		exp := time.Unix(1_902_000_000, 0).UTC()
		res.DeviceToken = f.remembered
		res.DeviceExpiresAt = &exp
	}
	return res, nil
}

func (f *fakeSessions) Validate(ctx context.Context, in sessionservice.ValidateInput) (*sessionservice.ValidateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validate = &in
	if f.err != nil {
		return nil, f.err
	}
	if !f.valid {
		return &sessionservice.ValidateResult{Valid: false}, nil
	}
	return &sessionservice.ValidateResult{Valid: true, DID: "did:example:abc123", MethodID: "m-1", ExpiresAt: time.Unix(1_900_000_000, 0).UTC()}, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, in sessionservice.RevokeInput) (*sessionservice.RevokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoke = &in
	if f.err != nil {
		return nil, f.err
	}
	return &sessionservice.RevokeResult{Sessions: 1}, nil
}
