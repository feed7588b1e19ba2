package domain

import "time"

// Action names the verification step an attempt belongs to.
type Action string

const (
	ActionSetupVerify   Action = "setup_verify"
	ActionSessionCreate Action = "session_create"
	ActionOAuthCallback Action = "oauth_callback"
)

// AuthAttempt is one append-only audit row. Rows are never updated.
type AuthAttempt struct {
	ID            string
	DID           string
	IP            string
	MethodType    string
	Action        Action
	Success       bool
	FailureReason string
	CreatedAt     time.Time
}
