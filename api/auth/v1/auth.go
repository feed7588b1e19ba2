// Package authv1 defines the didlink.auth.v1.AuthService messages and gRPC bindings.
// Messages travel as JSON through the codec registered in codec.go.
package authv1

import "time"

type BeginSetupRequest struct {
	DID            string `json:"did"`
	MethodType     string `json:"method_type"`
	ProofOfControl string `json:"proof_of_control"`
}

// BeginSetupResponse carries TOTP material (secret, otpauth_url, qr_code, backup_codes) or OAuth redirect parameters.
type BeginSetupResponse struct {
	MethodID             string   `json:"method_id"`
	MethodType           string   `json:"method_type"`
	Secret               string   `json:"secret,omitempty"`
	OtpauthURL           string   `json:"otpauth_url,omitempty"`
	QRCode               string   `json:"qr_code,omitempty"`
	BackupCodes          []string `json:"backup_codes,omitempty"`
	AuthorizationURL     string   `json:"authorization_url,omitempty"`
	State                string   `json:"state,omitempty"`
	VerificationRequired bool     `json:"verification_required"`
}

// Credential is one presented factor: a TOTP code, a recovery code, or an OAuth authorization code with its state.
type Credential struct {
	Code         string `json:"code,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
	AuthCode     string `json:"auth_code,omitempty"`
	State        string `json:"state,omitempty"`
}

type CompleteSetupRequest struct {
	DID            string     `json:"did"`
	MethodID       string     `json:"method_id"`
	ProofOfControl string     `json:"proof_of_control,omitempty"`
	Credential     Credential `json:"credential"`
}

type CompleteSetupResponse struct {
	Success    bool   `json:"success"`
	MethodID   string `json:"method_id"`
	MethodType string `json:"method_type"`
	LedgerTx   string `json:"ledger_tx"`
	IsPrimary  bool   `json:"is_primary"`
}

type RevokeMethodRequest struct {
	DID            string `json:"did"`
	MethodID       string `json:"method_id"`
	ProofOfControl string `json:"proof_of_control"`
}

type RevokeMethodResponse struct {
	MethodID string `json:"method_id"`
	Revoked  bool   `json:"revoked"`
}

type ListMethodsRequest struct {
	DID            string `json:"did"`
	ProofOfControl string `json:"proof_of_control"`
}

type AuthMethod struct {
	MethodID    string     `json:"method_id"`
	MethodType  string     `json:"method_type"`
	Status      string     `json:"status"`
	IsPrimary   bool       `json:"is_primary"`
	LedgerTx    string     `json:"ledger_tx,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

type ListMethodsResponse struct {
	Methods []AuthMethod `json:"methods"`
}

type CreateSessionRequest struct {
	DID               string     `json:"did"`
	MethodType        string     `json:"method_type"`
	Credential        Credential `json:"credential"`
	ProofOfControl    string     `json:"proof_of_control,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	DeviceToken       string     `json:"device_token,omitempty"`
	RememberDevice    bool       `json:"remember_device,omitempty"`
}

type CreateSessionResponse struct {
	SessionToken    string     `json:"session_token"`
	ExpiresAt       time.Time  `json:"expires_at"`
	MethodID        string     `json:"method_id"`
	Permissions     []string   `json:"permissions"`
	DeviceToken     string     `json:"device_token,omitempty"`
	DeviceExpiresAt *time.Time `json:"device_expires_at,omitempty"`
}

type ValidateSessionRequest struct {
	SessionToken string `json:"session_token"`
	Refresh      bool   `json:"refresh,omitempty"`
}

type ValidateSessionResponse struct {
	Valid       bool       `json:"valid"`
	DID         string     `json:"did,omitempty"`
	MethodID    string     `json:"method_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	NewToken    string     `json:"new_token,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

type RevokeSessionRequest struct {
	SessionToken string `json:"session_token,omitempty"`
	RevokeAll    bool   `json:"revoke_all,omitempty"`
	DeviceToken  string `json:"device_token,omitempty"`
}

type RevokeSessionResponse struct {
	RevokedSessions int `json:"revoked_sessions"`
	RevokedDevices  int `json:"revoked_devices"`
}
