// Package proof checks proof-of-control tokens: compact JWS signed with the DID's ledger verification key.
package proof

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"didlink/internal/autherr"
	"didlink/internal/ledger"
	"didlink/internal/security"
)

// MaxLifetime is the longest exp - iat accepted.
const MaxLifetime = 5 * time.Minute

var validMethods = []string{"ES256", "RS256", "EdDSA"}

// IdentityResolver fetches the current ledger record for a DID.
type IdentityResolver interface {
	GetIdentity(ctx context.Context, did string) (*ledger.Identity, error)
}

// Verifier validates proof-of-control tokens for a fixed audience.
type Verifier struct {
	identities IdentityResolver
	audience   string
	now        func() time.Time
}

// NewVerifier returns a Verifier. now may be nil to use time.Now.
func NewVerifier(identities IdentityResolver, audience string, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{identities: identities, audience: audience, now: now}
}

// Verify checks that token was signed by did's current verification key, is addressed to this service
// and is short-lived. It returns the identity so callers can reuse the deactivation flag.
// Deactivated DIDs and bad tokens are Unauthorized; ledger failures pass through.
func (v *Verifier) Verify(ctx context.Context, did, token string) (*ledger.Identity, error) {
	if token == "" {
		return nil, autherr.Unauthorized("proof of control required")
	}
	identity, err := v.identities.GetIdentity(ctx, did)
	if err != nil {
		return nil, err
	}
	if identity.Deactivated {
		return nil, autherr.Unauthorized("identity deactivated")
	}
	if identity.VerificationKey == "" {
		return nil, autherr.Unauthorized("invalid proof of control")
	}
	key, err := security.ParsePublicKeyPEM(identity.VerificationKey)
	if err != nil {
		log.Printf("proof: unusable verification key for %s: %v", did, err)
		return nil, autherr.Unauthorized("invalid proof of control")
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != security.KeyAlg(key) {
			return nil, fmt.Errorf("proof: alg %s does not match key", t.Method.Alg())
		}
		return key, nil
	},
		jwt.WithValidMethods(validMethods),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(did),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, autherr.Unauthorized("invalid proof of control")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxLifetime {
		return nil, autherr.Unauthorized("invalid proof of control")
	}
	return identity, nil
}
