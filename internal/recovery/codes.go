// Package recovery generates and hashes single-use backup codes for TOTP methods.
package recovery

import (
	"crypto/rand"
	"strings"

	"didlink/internal/security"
)

// CodeCount is the number of codes issued per TOTP setup.
const CodeCount = 8

// alphabet omits 0/O and 1/I/L so codes survive being read aloud.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const groupLen = 4

// GenerateCodes returns n codes formatted XXXX-XXXX.
// Uses crypto/rand; rejection sampling keeps the alphabet uniform.
func GenerateCodes(n int) ([]string, error) {
	out := make([]string, 0, n)
	for len(out) < n {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

func generateCode() (string, error) {
	const limit = 256 - 256%len(alphabet)
	chars := make([]byte, 0, 2*groupLen)
	buf := make([]byte, 16)
	for len(chars) < 2*groupLen {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit || len(chars) == 2*groupLen {
				continue
			}
			chars = append(chars, alphabet[int(b)%len(alphabet)])
		}
	}
	return string(chars[:groupLen]) + "-" + string(chars[groupLen:]), nil
}

// Normalize uppercases the code and strips separators and spaces, so "abcd efgh" matches "ABCD-EFGH".
func Normalize(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LooksLikeCode reports whether code has the shape of a recovery code after normalization.
func LooksLikeCode(code string) bool {
	n := Normalize(code)
	if len(n) != 2*groupLen {
		return false
	}
	for i := 0; i < len(n); i++ {
		if !strings.ContainsRune(alphabet, rune(n[i])) {
			return false
		}
	}
	return true
}

// HashCode binds the normalized code to the DID: hex(SHA-256(did ":" code)).
func HashCode(did, code string) string {
	return security.HashParts(did, Normalize(code))
}
