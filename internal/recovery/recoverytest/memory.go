// Package recoverytest provides an in-memory recovery code repository for service tests.
package recoverytest

import (
	"context"
	"sync"
	"time"

	"didlink/internal/recovery/domain"
)

// Store implements the recovery repository in memory.
type Store struct {
	mu    sync.Mutex
	codes []*domain.RecoveryCode
}

func (s *Store) ReplaceForDID(ctx context.Context, did string, codes []*domain.RecoveryCode, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.DID == did && !c.Consumed {
			c.Consumed = true
			c.ConsumedAt = &at
		}
	}
	for _, c := range codes {
		cp := *c
		cp.DID = did
		s.codes = append(s.codes, &cp)
	}
	return nil
}

func (s *Store) Consume(ctx context.Context, did, codeHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.DID == did && c.CodeHash == codeHash && !c.Consumed {
			c.Consumed = true
			c.ConsumedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountRemaining(ctx context.Context, did string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if c.DID == did && !c.Consumed {
			n++
		}
	}
	return n, nil
}
