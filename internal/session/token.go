// Package session encodes and verifies bearer session tokens.
//
// Wire form: base64url(JSON payload) "." hex(HMAC-SHA256(encoded payload, secret)).
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"didlink/internal/autherr"
	"didlink/internal/security"
)

// MinSecretLength is the shortest accepted HMAC key.
const MinSecretLength = 32

const nonceBytes = 16

var payloadEncoding = base64.RawURLEncoding.Strict()

// ErrInvalidToken is returned for any malformed or tampered token.
var ErrInvalidToken = autherr.Unauthorized("invalid session token")

// Payload is the signed body of a session token. Times are Unix seconds.
type Payload struct {
	DID               string `json:"did"`
	MethodID          string `json:"method_id"`
	MethodType        string `json:"method_type"`
	IssuedAt          int64  `json:"issued_at"`
	ExpiresAt         int64  `json:"expires_at"`
	Nonce             string `json:"nonce"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// Expiry returns ExpiresAt as a time.
func (p *Payload) Expiry() time.Time { return time.Unix(p.ExpiresAt, 0).UTC() }

// Lifetime returns the span the token was issued for.
func (p *Payload) Lifetime() time.Duration { return time.Duration(p.ExpiresAt-p.IssuedAt) * time.Second }

// Signer signs and verifies tokens with one HMAC key.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer. secret must be at least MinSecretLength bytes.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, errors.New("session: secret must be at least 32 bytes")
	}
	return &Signer{key: append([]byte(nil), secret...)}, nil
}

// NewPayload fills in the nonce and the issue and expiry times.
func NewPayload(did, methodID, methodType, fingerprint string, now time.Time, ttl time.Duration) (*Payload, error) {
	nonce, err := security.RandomToken(nonceBytes)
	if err != nil {
		return nil, err
	}
	return &Payload{
		DID:               did,
		MethodID:          methodID,
		MethodType:        methodType,
		IssuedAt:          now.Unix(),
		ExpiresAt:         now.Add(ttl).Unix(),
		Nonce:             nonce,
		DeviceFingerprint: fingerprint,
	}, nil
}

// Sign returns the wire form of p.
func (s *Signer) Sign(p *Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	encoded := payloadEncoding.EncodeToString(body)
	return encoded + "." + s.mac(encoded), nil
}

// Parse verifies the signature and decodes the payload. Expiry is not checked here.
// The signature must be the exact lowercase hex the signer produces.
func (s *Signer) Parse(token string) (*Payload, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || strings.Contains(sig, ".") {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(encoded))) {
		return nil, ErrInvalidToken
	}
	body, err := payloadEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrInvalidToken
	}
	if p.DID == "" || p.MethodID == "" || p.ExpiresAt <= p.IssuedAt {
		return nil, ErrInvalidToken
	}
	return &p, nil
}

func (s *Signer) mac(encoded string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(encoded))
	return hex.EncodeToString(h.Sum(nil))
}
