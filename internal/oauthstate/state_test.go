package oauthstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didlink/internal/autherr"
)

type memNonces struct {
	mu   sync.Mutex
	live map[string]bool
}

func (m *memNonces) Reserve(ctx context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		m.live = map[string]bool{}
	}
	m.live[nonce] = true
	return nil
}

func (m *memNonces) Consume(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[nonce] {
		return false, nil
	}
	delete(m.live, nonce)
	return true, nil
}

var secret = []byte(strings.Repeat("s", 32))

func newManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	m, err := NewManager(secret, &memNonces{}, func() time.Time { return *now })
	require.NoError(t, err)
	return m
}

func TestManager_IssueConsume(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	ctx := context.Background()

	token, err := m.Issue(ctx, State{DID: "did:example:abc123", Provider: "github", Purpose: PurposeSession, Fingerprint: "fp-1", Remember: true})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	s, err := m.Consume(ctx, token, "did:example:abc123", "github", PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", s.Fingerprint)
	assert.True(t, s.Remember)
	assert.NotEmpty(t, s.Nonce)

	_, err = m.Consume(ctx, token, "did:example:abc123", "github", PurposeSession)
	assert.True(t, errors.Is(err, autherr.ErrUnauthorized), "replayed state must fail, got %v", err)
}

func TestManager_PeekRejectsStaleState(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)

	token, err := m.Issue(context.Background(), State{DID: "did:example:abc123", Provider: "github", Purpose: PurposeLink, MethodID: "m-1"})
	require.NoError(t, err)

	now = now.Add(MaxAge - time.Second)
	s, err := m.Peek(token)
	require.NoError(t, err)
	assert.Equal(t, "m-1", s.MethodID)

	now = now.Add(2 * time.Second)
	_, err = m.Peek(token)
	assert.True(t, errors.Is(err, autherr.ErrUnauthorized))
}

func TestManager_RejectsMismatchAndForgery(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	ctx := context.Background()

	token, err := m.Issue(ctx, State{DID: "did:example:abc123", Provider: "github", Purpose: PurposeLink})
	require.NoError(t, err)

	_, err = m.Consume(ctx, token, "did:example:other", "github", PurposeLink)
	assert.Error(t, err)
	_, err = m.Consume(ctx, token, "did:example:abc123", "google", PurposeLink)
	assert.Error(t, err)
	_, err = m.Consume(ctx, token, "did:example:abc123", "github", PurposeSession)
	assert.Error(t, err)

	other, err := NewManager([]byte(strings.Repeat("o", 32)), &memNonces{}, func() time.Time { return now })
	require.NoError(t, err)
	_, err = other.Peek(token)
	assert.Error(t, err, "state signed with another secret must fail")

	_, err = m.Peek("")
	assert.Error(t, err)
	_, err = m.Peek("not.a.jwt")
	assert.Error(t, err)

	// Mismatched consumes above must not have burned the nonce.
	_, err = m.Consume(ctx, token, "did:example:abc123", "github", PurposeLink)
	assert.NoError(t, err)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager([]byte("short"), &memNonces{}, nil)
	assert.Error(t, err)
	_, err = NewManager(secret, nil, nil)
	assert.Error(t, err)
}
