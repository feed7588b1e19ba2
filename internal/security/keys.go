package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// ParsePublicKeyPEM parses a PEM-encoded public key (RSA, ECDSA or Ed25519).
// Keys arrive from the ledger as inline PEM; literal "\n" sequences are accepted.
func ParsePublicKeyPEM(s string) (crypto.PublicKey, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n"))
	if !strings.HasPrefix(s, "-----BEGIN") {
		return nil, ErrInvalidKey
	}
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if KeyAlg(key) == "" {
			return nil, ErrInvalidKey
		}
		return key, nil
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns the JWS algorithm for the key: "RS256" for RSA, "ES256" for ECDSA P-256,
// "EdDSA" for Ed25519; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name == "P-256" {
			return "ES256"
		}
		return ""
	case ed25519.PublicKey:
		return "EdDSA"
	default:
		return ""
	}
}
