// Package methodtest provides an in-memory auth method repository with the same conditional-write
// semantics as the Postgres one, for service tests.
package methodtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"didlink/internal/method/domain"
	methodrepo "didlink/internal/method/repository"
)

// Store implements methodrepo.Repository.
type Store struct {
	mu      sync.Mutex
	methods map[string]*domain.AuthMethod
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{methods: map[string]*domain.AuthMethod{}}
}

func clone(m *domain.AuthMethod) *domain.AuthMethod {
	if m == nil {
		return nil
	}
	c := *m
	if m.LastUsedStep != nil {
		v := *m.LastUsedStep
		c.LastUsedStep = &v
	}
	return &c
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.AuthMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.methods[id]), nil
}

func (s *Store) GetLive(ctx context.Context, did string, t domain.MethodType) (*domain.AuthMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.liveLocked(did, t)), nil
}

func (s *Store) liveLocked(did string, t domain.MethodType) *domain.AuthMethod {
	for _, m := range s.methods {
		if m.DID == did && m.Type == t && m.Status != domain.StatusRevoked {
			return m
		}
	}
	return nil
}

func (s *Store) ListByDID(ctx context.Context, did string) ([]*domain.AuthMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AuthMethod
	for _, m := range s.methods {
		if m.DID == did && m.Status != domain.StatusRevoked {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ReplacePending(ctx context.Context, m *domain.AuthMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live := s.liveLocked(m.DID, m.Type); live != nil {
		if live.Status == domain.StatusActive {
			return methodrepo.ErrLiveMethodExists
		}
		at := m.CreatedAt
		live.Status = domain.StatusRevoked
		live.RevokedAt = &at
	}
	s.methods[m.ID] = clone(m)
	return nil
}

func (s *Store) Activate(ctx context.Context, id string, a methodrepo.Activation) (*domain.AuthMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.methods[id]
	if m == nil || m.Status != domain.StatusPending {
		return nil, methodrepo.ErrNotPending
	}
	primary := true
	for _, other := range s.methods {
		if other.ID != id && other.DID == m.DID && other.Status == domain.StatusActive && other.IsPrimary {
			primary = false
		}
	}
	at := a.At
	m.Status = domain.StatusActive
	m.ActivatedAt = &at
	m.LastUsedAt = &at
	m.PublicKeyHash = a.PublicKeyHash
	if a.EncryptedSecret != "" {
		m.EncryptedSecret = a.EncryptedSecret
	}
	if a.Step != nil {
		v := *a.Step
		m.LastUsedStep = &v
	}
	m.IsPrimary = primary
	return clone(m), nil
}

func (s *Store) SetLedgerTx(ctx context.Context, id, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.methods[id]; m != nil {
		m.LedgerTxRef = txRef
	}
	return nil
}

func (s *Store) ConsumeStep(ctx context.Context, id string, step int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.methods[id]
	if m == nil || m.Status != domain.StatusActive || (m.LastUsedStep != nil && *m.LastUsedStep >= step) {
		return false, nil
	}
	m.LastUsedStep = &step
	m.LastUsedAt = &at
	return true, nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.methods[id]; m != nil {
		m.LastUsedAt = &at
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.methods[id]
	if m == nil || m.Status == domain.StatusRevoked {
		return false, nil
	}
	m.Status = domain.StatusRevoked
	m.RevokedAt = &at
	m.IsPrimary = false
	return true, nil
}
