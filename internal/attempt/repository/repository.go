package repository

import (
	"context"
	"time"

	"didlink/internal/attempt/domain"
)

// Bucket selects which attempts count toward a rate limit.
type Bucket string

const (
	// BucketTOTP counts attempts against TOTP methods, including recovery codes.
	BucketTOTP Bucket = "totp"
	// BucketOAuth counts attempts against any oauth:<provider> method.
	BucketOAuth Bucket = "oauth"
	// BucketSessionCreate counts session-create attempts of every method type.
	BucketSessionCreate Bucket = "session_create"
)

// Filter scopes a failure count to one (did, ip) pair and bucket since a point in time.
type Filter struct {
	DID    string
	IP     string
	Bucket Bucket
	Since  time.Time
}

// Repository defines persistence for auth attempts. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, a *domain.AuthAttempt) error
	// CountFailures counts failed attempts matching f. Failures caused by the service itself
	// (upstream or internal) and rate-limit rejections are not counted.
	CountFailures(ctx context.Context, f Filter) (int, error)
}
