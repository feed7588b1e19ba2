// Package prooftest issues proof-of-control tokens for tests.
package prooftest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer holds a P-256 key standing in for a DID controller.
type Signer struct {
	Key       *ecdsa.PrivateKey
	PublicPEM string
}

// NewSigner generates a fresh controller key.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("prooftest: generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("prooftest: marshal key: %v", err)
	}
	return &Signer{Key: key, PublicPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))}
}

// Proof returns a token for did and audience valid for two minutes from now.
func (s *Signer) Proof(t testing.TB, did, audience string, now time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    did,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
		ID:        uuid.NewString(),
	}).SignedString(s.Key)
	if err != nil {
		t.Fatalf("prooftest: sign: %v", err)
	}
	return tok
}
