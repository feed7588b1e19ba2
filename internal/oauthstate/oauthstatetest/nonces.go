// Package oauthstatetest provides an in-memory nonce store for tests.
package oauthstatetest

import (
	"context"
	"sync"
	"time"
)

// Nonces implements oauthstate.NonceStore in memory. TTLs are ignored; the Manager enforces age itself.
type Nonces struct {
	mu   sync.Mutex
	live map[string]bool
}

func (n *Nonces) Reserve(ctx context.Context, nonce string, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.live == nil {
		n.live = map[string]bool{}
	}
	n.live[nonce] = true
	return nil
}

func (n *Nonces) Consume(ctx context.Context, nonce string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.live[nonce] {
		return false, nil
	}
	delete(n.live, nonce)
	return true, nil
}
