package credential

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"image/png"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"didlink/internal/autherr"
	"didlink/internal/method/domain"
	"didlink/internal/recovery"
	"didlink/internal/security"
)

const (
	// TOTPPeriod is the time step in seconds.
	TOTPPeriod = 30
	// TOTPSkew is the number of steps accepted on either side of the current one.
	TOTPSkew = 2

	totpDigits     = 6
	totpSecretSize = 20
	qrSize         = 256
)

// StepStore persists the last consumed step of a method.
type StepStore interface {
	// ConsumeStep returns false when step is not newer than the stored one.
	ConsumeStep(ctx context.Context, id string, step int64, at time.Time) (bool, error)
}

// RecoveryStore consumes single-use recovery codes.
type RecoveryStore interface {
	Consume(ctx context.Context, did, codeHash string, at time.Time) (bool, error)
}

// TOTPStrategy enrolls and verifies RFC 6238 codes with backup recovery codes.
type TOTPStrategy struct {
	issuer   string
	steps    StepStore
	recovery RecoveryStore
}

// NewTOTPStrategy returns a TOTP strategy labelling secrets with issuer.
func NewTOTPStrategy(issuer string, steps StepStore, recoveryCodes RecoveryStore) *TOTPStrategy {
	return &TOTPStrategy{issuer: issuer, steps: steps, recovery: recoveryCodes}
}

// Enroll generates a 20-byte secret, its otpauth URL and QR code, and the recovery codes.
func (s *TOTPStrategy) Enroll(ctx context.Context, in EnrollInput) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: in.DID,
		Period:      TOTPPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, autherr.Internal("enrollment failed", err)
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, autherr.Internal("enrollment failed", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, autherr.Internal("enrollment failed", err)
	}
	codes, err := recovery.GenerateCodes(recovery.CodeCount)
	if err != nil {
		return nil, autherr.Internal("enrollment failed", err)
	}
	return &Enrollment{
		Secret:        []byte(key.Secret()),
		PublicKeyHash: totpKeyHash(in.DID, key.Secret()),
		TOTP: &TOTPSetup{
			Secret: key.Secret(),
			URL:    key.URL(),
			QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		},
		RecoveryCodes: codes,
	}, nil
}

// Verify checks a 6-digit code within ±TOTPSkew steps, or a recovery code at login.
// During setup the matched step is returned for the activation write to persist; at login it
// is consumed here so a replayed code fails even when numerically correct.
func (s *TOTPStrategy) Verify(ctx context.Context, in VerifyInput) (*Result, error) {
	m := in.Method
	if in.Credential.RecoveryCode != "" {
		return s.verifyRecovery(ctx, in)
	}
	code := in.Credential.Code
	if !isDigits(code, totpDigits) {
		return nil, autherr.Validation("code must be 6 digits")
	}
	secret := string(in.Secret)
	step, ok := matchStep(secret, code, in.Now, m.LastUsedStep)
	if !ok {
		return nil, autherr.Unauthorized("invalid code")
	}
	if in.Purpose == PurposeSession {
		consumed, err := s.steps.ConsumeStep(ctx, m.ID, step, in.Now)
		if err != nil {
			return nil, autherr.Internal("verification failed", err)
		}
		if !consumed {
			return nil, autherr.Unauthorized("invalid code")
		}
	}
	return &Result{
		Attestation: Attestation{
			DID:          m.DID,
			MethodID:     m.ID,
			MethodType:   m.Type,
			VerifiedAt:   in.Now,
			EvidenceHash: security.HashParts(string(domain.MethodTypeTOTP), m.ID, strconv.FormatInt(step, 10)),
			Step:         &step,
		},
		Step:          &step,
		PublicKeyHash: totpKeyHash(m.DID, secret),
	}, nil
}

func (s *TOTPStrategy) verifyRecovery(ctx context.Context, in VerifyInput) (*Result, error) {
	m := in.Method
	if in.Purpose != PurposeSession {
		return nil, autherr.Validation("recovery codes are only accepted at login")
	}
	if !recovery.LooksLikeCode(in.Credential.RecoveryCode) {
		return nil, autherr.Unauthorized("invalid recovery code")
	}
	hash := recovery.HashCode(m.DID, in.Credential.RecoveryCode)
	ok, err := s.recovery.Consume(ctx, m.DID, hash, in.Now)
	if err != nil {
		return nil, autherr.Internal("verification failed", err)
	}
	if !ok {
		return nil, autherr.Unauthorized("invalid recovery code")
	}
	return &Result{
		Attestation: Attestation{
			DID:          m.DID,
			MethodID:     m.ID,
			MethodType:   m.Type,
			VerifiedAt:   in.Now,
			EvidenceHash: security.HashParts("recovery", m.ID, hash),
			Recovery:     true,
		},
		PublicKeyHash: m.PublicKeyHash,
	}, nil
}

// StepAt returns the TOTP time-step counter for t.
func StepAt(t time.Time) int64 { return t.Unix() / TOTPPeriod }

// matchStep returns the earliest step within the skew window that is newer than lastUsed
// and whose code equals code.
func matchStep(secret, code string, now time.Time, lastUsed *int64) (int64, bool) {
	current := StepAt(now)
	opts := totp.ValidateOpts{Period: TOTPPeriod, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
	for step := current - TOTPSkew; step <= current+TOTPSkew; step++ {
		if step < 0 || (lastUsed != nil && step <= *lastUsed) {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*TOTPPeriod, 0), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func totpKeyHash(did, secret string) string {
	return security.HashParts(string(domain.MethodTypeTOTP), did, secret)
}
