// Package oauthstate issues and checks the signed, single-use state parameter of OAuth redirects.
package oauthstate

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"didlink/internal/autherr"
	"didlink/internal/security"
)

// MaxAge is how long a state stays acceptable after issue.
const MaxAge = 5 * time.Minute

// Purpose says what the redirect will do once the provider calls back.
type Purpose string

const (
	// PurposeLink completes setup of a pending oauth method.
	PurposeLink Purpose = "link"
	// PurposeSession logs in with an active oauth method.
	PurposeSession Purpose = "session"
)

// State is the verified content of a state token.
type State struct {
	DID         string
	Provider    string
	Purpose     Purpose
	MethodID    string
	Fingerprint string
	Remember    bool
	Nonce       string
	IssuedAt    time.Time
}

type stateClaims struct {
	DID         string  `json:"did"`
	Provider    string  `json:"provider"`
	Purpose     Purpose `json:"purpose"`
	MethodID    string  `json:"method_id,omitempty"`
	Fingerprint string  `json:"fp,omitempty"`
	Remember    bool    `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// NonceStore makes each state usable once.
type NonceStore interface {
	Reserve(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume returns false when the nonce was never reserved, already consumed or expired.
	Consume(ctx context.Context, nonce string) (bool, error)
}

var errInvalidState = autherr.Unauthorized("invalid or expired state")

// Manager signs states with HS256 and tracks their nonces.
type Manager struct {
	secret []byte
	nonces NonceStore
	now    func() time.Time
}

// NewManager returns a Manager. now may be nil to use time.Now.
func NewManager(secret []byte, nonces NonceStore, now func() time.Time) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("oauthstate: secret must be at least 32 bytes")
	}
	if nonces == nil {
		return nil, errors.New("oauthstate: nonce store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{secret: secret, nonces: nonces, now: now}, nil
}

// Issue reserves a fresh nonce and returns the signed state token for s.
func (m *Manager) Issue(ctx context.Context, s State) (string, error) {
	nonce, err := security.RandomToken(18)
	if err != nil {
		return "", autherr.Internal("state unavailable", err)
	}
	if err := m.nonces.Reserve(ctx, nonce, MaxAge); err != nil {
		return "", autherr.Internal("state unavailable", err)
	}
	now := m.now().UTC().Truncate(time.Second)
	claims := stateClaims{
		DID:         s.DID,
		Provider:    s.Provider,
		Purpose:     s.Purpose,
		MethodID:    s.MethodID,
		Fingerprint: s.Fingerprint,
		Remember:    s.Remember,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(MaxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", autherr.Internal("state unavailable", err)
	}
	return signed, nil
}

// Peek checks signature and age without consuming the nonce. Callbacks run it before any
// network call so stale or forged states never reach the provider.
func (m *Manager) Peek(token string) (*State, error) {
	if token == "" {
		return nil, errInvalidState
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || claims.IssuedAt == nil || claims.ID == "" {
		return nil, errInvalidState
	}
	if m.now().Sub(claims.IssuedAt.Time) > MaxAge {
		return nil, errInvalidState
	}
	return &State{
		DID:         claims.DID,
		Provider:    claims.Provider,
		Purpose:     claims.Purpose,
		MethodID:    claims.MethodID,
		Fingerprint: claims.Fingerprint,
		Remember:    claims.Remember,
		Nonce:       claims.ID,
		IssuedAt:    claims.IssuedAt.Time,
	}, nil
}

// Consume verifies token like Peek, checks it was issued for did, provider and purpose,
// then burns its nonce. A second Consume of the same token fails.
func (m *Manager) Consume(ctx context.Context, token, did, provider string, purpose Purpose) (*State, error) {
	s, err := m.Peek(token)
	if err != nil {
		return nil, err
	}
	if s.DID != did || s.Provider != provider || s.Purpose != purpose {
		return nil, errInvalidState
	}
	ok, err := m.nonces.Consume(ctx, s.Nonce)
	if err != nil {
		return nil, autherr.Internal("state unavailable", err)
	}
	if !ok {
		return nil, autherr.Unauthorized("state already used")
	}
	return s, nil
}
