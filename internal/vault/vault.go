// Package vault seals method secrets at rest with AES-256-GCM under a key derived per DID from the master key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"didlink/internal/autherr"
)

const (
	// DefaultIterations is the PBKDF2-SHA-256 iteration count for new vaults.
	DefaultIterations = 210000
	// MinIterations is the lowest iteration count New accepts.
	MinIterations = 100000
	// MinMasterKeySize is the minimum master key length in bytes.
	MinMasterKeySize = 32

	keySize   = 32
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16

	formatVersion = "v1"
)

var (
	// ErrMasterKeyTooShort is returned by New when the master key has fewer than MinMasterKeySize bytes.
	ErrMasterKeyTooShort = errors.New("vault: master key must be at least 32 bytes")
	// ErrMalformed is the cause recorded when a sealed value cannot be parsed.
	ErrMalformed = errors.New("vault: malformed sealed value")
	// ErrOpenFailed is the cause recorded when authentication of a sealed value fails.
	ErrOpenFailed = errors.New("vault: authentication failed")
)

// Sealed is the parsed form of a stored secret.
type Sealed struct {
	Salt       []byte
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// String encodes s as v1.<salt>.<iv>.<tag>.<ciphertext> with unpadded base64url parts.
func (s Sealed) String() string {
	enc := base64.RawURLEncoding
	return strings.Join([]string{
		formatVersion,
		enc.EncodeToString(s.Salt),
		enc.EncodeToString(s.IV),
		enc.EncodeToString(s.Tag),
		enc.EncodeToString(s.Ciphertext),
	}, ".")
}

// Parse decodes the stored string form produced by Sealed.String.
func Parse(v string) (Sealed, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 5 || parts[0] != formatVersion {
		return Sealed{}, ErrMalformed
	}
	enc := base64.RawURLEncoding.Strict()
	var out Sealed
	fields := []*[]byte{&out.Salt, &out.IV, &out.Tag, &out.Ciphertext}
	for i, dst := range fields {
		b, err := enc.DecodeString(parts[i+1])
		if err != nil {
			return Sealed{}, ErrMalformed
		}
		*dst = b
	}
	if len(out.Salt) != saltSize || len(out.IV) != nonceSize || len(out.Tag) != tagSize {
		return Sealed{}, ErrMalformed
	}
	return out, nil
}

// Vault seals and opens secrets bound to a DID. Safe for concurrent use.
type Vault struct {
	masterKey  []byte
	iterations int
	rand       io.Reader
}

// Option configures a Vault.
type Option func(*Vault)

// WithIterations sets the PBKDF2 iteration count. Values below MinIterations are raised to MinIterations.
func WithIterations(n int) Option {
	return func(v *Vault) {
		if n < MinIterations {
			n = MinIterations
		}
		v.iterations = n
	}
}

// New returns a Vault for masterKey. The key is copied.
func New(masterKey []byte, opts ...Option) (*Vault, error) {
	if len(masterKey) < MinMasterKeySize {
		return nil, ErrMasterKeyTooShort
	}
	v := &Vault{
		masterKey:  append([]byte(nil), masterKey...),
		iterations: DefaultIterations,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Seal encrypts plaintext for did under a fresh salt and IV.
func (v *Vault) Seal(did string, plaintext []byte) (Sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return Sealed{}, autherr.Internal("secret unavailable", fmt.Errorf("vault: salt: %w", err))
	}
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(v.rand, iv); err != nil {
		return Sealed{}, autherr.Internal("secret unavailable", fmt.Errorf("vault: iv: %w", err))
	}
	aead, err := v.aead(did, salt)
	if err != nil {
		return Sealed{}, err
	}
	out := aead.Seal(nil, iv, plaintext, []byte(did))
	split := len(out) - tagSize
	return Sealed{
		Salt:       salt,
		IV:         iv,
		Tag:        out[split:],
		Ciphertext: out[:split],
	}, nil
}

// SealString is Seal followed by Sealed.String.
func (v *Vault) SealString(did string, plaintext []byte) (string, error) {
	s, err := v.Seal(did, plaintext)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// Open decrypts s for did. Any failure, including a wrong DID, yields a generic Internal error.
func (v *Vault) Open(did string, s Sealed) ([]byte, error) {
	if len(s.IV) != nonceSize || len(s.Tag) != tagSize {
		return nil, autherr.Internal("secret unavailable", ErrMalformed)
	}
	aead, err := v.aead(did, s.Salt)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(s.Ciphertext)+tagSize)
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)
	plain, err := aead.Open(nil, s.IV, buf, []byte(did))
	if err != nil {
		return nil, autherr.Internal("secret unavailable", ErrOpenFailed)
	}
	return plain, nil
}

// OpenString parses the stored form and opens it.
func (v *Vault) OpenString(did, stored string) ([]byte, error) {
	s, err := Parse(stored)
	if err != nil {
		return nil, autherr.Internal("secret unavailable", err)
	}
	return v.Open(did, s)
}

func (v *Vault) aead(did string, salt []byte) (cipher.AEAD, error) {
	key := v.deriveKey(did, salt)
	defer zeroBytes(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, autherr.Internal("secret unavailable", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, autherr.Internal("secret unavailable", err)
	}
	return aead, nil
}

func (v *Vault) deriveKey(did string, salt []byte) []byte {
	material := make([]byte, 0, len(salt)+len(did))
	material = append(material, salt...)
	material = append(material, did...)
	return pbkdf2.Key(v.masterKey, material, v.iterations, keySize, sha256.New)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
