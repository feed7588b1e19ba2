package proof

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"didlink/internal/autherr"
	"didlink/internal/ledger"
)

const testDID = "did:example:abc123"

type fakeIdentities struct {
	identity *ledger.Identity
	err      error
}

func (f *fakeIdentities) GetIdentity(ctx context.Context, did string) (*ledger.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

func TestVerify(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	key, pubPEM := newKey(t)
	other, _ := newKey(t)
	ids := &fakeIdentities{identity: &ledger.Identity{DID: testDID, VerificationKey: pubPEM}}
	v := NewVerifier(ids, "didlink-auth", func() time.Time { return now })

	good := jwt.RegisteredClaims{
		Issuer:    testDID,
		Audience:  jwt.ClaimStrings{"didlink-auth"},
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
		ID:        "p1",
	}
	if _, err := v.Verify(context.Background(), testDID, sign(t, key, good)); err != nil {
		t.Fatalf("Verify(good): %v", err)
	}

	wrongAud := good
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}
	wrongIss := good
	wrongIss.Issuer = "did:example:other"
	expired := good
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))
	tooLong := good
	tooLong.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
	noExp := good
	noExp.ExpiresAt = nil

	cases := map[string]string{
		"empty":          "",
		"wrong key":      sign(t, other, good),
		"wrong audience": sign(t, key, wrongAud),
		"wrong issuer":   sign(t, key, wrongIss),
		"expired":        sign(t, key, expired),
		"too long":       sign(t, key, tooLong),
		"no exp":         sign(t, key, noExp),
		"garbage":        "a.b.c",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), testDID, tok)
			if !errors.Is(err, autherr.ErrUnauthorized) {
				t.Errorf("err = %v, want Unauthorized", err)
			}
		})
	}
}

func TestVerify_DeactivatedIdentity(t *testing.T) {
	now := time.Now()
	key, pubPEM := newKey(t)
	v := NewVerifier(&fakeIdentities{identity: &ledger.Identity{DID: testDID, Deactivated: true, VerificationKey: pubPEM}}, "aud", nil)
	tok := sign(t, key, jwt.RegisteredClaims{
		Issuer: testDID, Audience: jwt.ClaimStrings{"aud"},
		IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	})
	if _, err := v.Verify(context.Background(), testDID, tok); !errors.Is(err, autherr.ErrUnauthorized) {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestVerify_LedgerErrorPassesThrough(t *testing.T) {
	v := NewVerifier(&fakeIdentities{err: autherr.Upstream("ledger unavailable", nil)}, "aud", nil)
	_, err := v.Verify(context.Background(), testDID, "x.y.z")
	if !errors.Is(err, autherr.ErrUpstream) {
		t.Errorf("err = %v, want Upstream", err)
	}
}
