// Package ledgertest provides an in-memory identity ledger for service tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"didlink/internal/autherr"
	"didlink/internal/ledger"
)

// Ledger implements ledger.Client. Unknown DIDs are NotFound.
type Ledger struct {
	mu         sync.Mutex
	identities map[string]*ledger.Identity
	linkages   []ledger.Linkage

	// SubmitErr, when set, fails every SubmitMethodLinkage call.
	SubmitErr error
	// IdentityErr, when set, fails every GetIdentity call.
	IdentityErr error
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{identities: map[string]*ledger.Identity{}}
}

// Register adds or replaces an identity with the given PEM verification key.
func (l *Ledger) Register(did, publicPEM string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identities[did] = &ledger.Identity{DID: did, VerificationKey: publicPEM}
}

// Deactivate marks did as deactivated.
func (l *Ledger) Deactivate(did string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.identities[did]; ok {
		id.Deactivated = true
	}
}

func (l *Ledger) GetIdentity(ctx context.Context, did string) (*ledger.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.IdentityErr != nil {
		return nil, l.IdentityErr
	}
	id, ok := l.identities[did]
	if !ok {
		return nil, autherr.NotFound("identity not found")
	}
	c := *id
	return &c, nil
}

func (l *Ledger) SubmitMethodLinkage(ctx context.Context, link ledger.Linkage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubmitErr != nil {
		return "", l.SubmitErr
	}
	l.linkages = append(l.linkages, link)
	return fmt.Sprintf("0xtx%04d", len(l.linkages)), nil
}

// Linkages returns the anchored linkages in submission order.
func (l *Ledger) Linkages() []ledger.Linkage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Linkage(nil), l.linkages...)
}
