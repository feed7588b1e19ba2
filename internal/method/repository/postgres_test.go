package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"didlink/internal/db/dbtest"
	"didlink/internal/method/domain"
)

func newPending(did string, t domain.MethodType, at time.Time) *domain.AuthMethod {
	return &domain.AuthMethod{ID: uuid.NewString(), DID: did, Type: t, EncryptedSecret: "v1.sealed", Status: domain.StatusPending, CreatedAt: at}
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	conn := dbtest.Open(t, "auth_methods")
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	did := "did:example:" + uuid.NewString()

	first := newPending(did, domain.MethodTypeTOTP, now)
	if err := repo.ReplacePending(ctx, first); err != nil {
		t.Fatalf("ReplacePending: %v", err)
	}
	second := newPending(did, domain.MethodTypeTOTP, now.Add(time.Second))
	if err := repo.ReplacePending(ctx, second); err != nil {
		t.Fatalf("ReplacePending (replace): %v", err)
	}
	old, _ := repo.GetByID(ctx, first.ID)
	if old == nil || old.Status != domain.StatusRevoked {
		t.Fatalf("abandoned pending = %+v, want revoked", old)
	}

	step := int64(100)
	active, err := repo.Activate(ctx, second.ID, Activation{PublicKeyHash: "h", Step: &step, At: now})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !active.IsPrimary || active.Status != domain.StatusActive || active.EncryptedSecret != "v1.sealed" {
		t.Errorf("activated = %+v", active)
	}
	if _, err := repo.Activate(ctx, second.ID, Activation{At: now}); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Activate err = %v, want ErrNotPending", err)
	}
	if err := repo.ReplacePending(ctx, newPending(did, domain.MethodTypeTOTP, now)); !errors.Is(err, ErrLiveMethodExists) {
		t.Errorf("ReplacePending with active err = %v, want ErrLiveMethodExists", err)
	}

	if ok, _ := repo.ConsumeStep(ctx, second.ID, 100, now); ok {
		t.Error("ConsumeStep(100) after setup at 100 should be a replay")
	}
	if ok, _ := repo.ConsumeStep(ctx, second.ID, 101, now); !ok {
		t.Error("ConsumeStep(101) should succeed")
	}

	if ok, _ := repo.Revoke(ctx, second.ID, now); !ok {
		t.Error("Revoke should change an active method")
	}
	if ok, _ := repo.Revoke(ctx, second.ID, now); ok {
		t.Error("second Revoke should be a no-op")
	}
	live, _ := repo.ListByDID(ctx, did)
	if len(live) != 0 {
		t.Errorf("ListByDID = %d methods, want 0", len(live))
	}
}

func TestPostgresRepository_ConcurrentActivate(t *testing.T) {
	conn := dbtest.Open(t, "auth_methods")
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	m := newPending("did:example:"+uuid.NewString(), domain.MethodTypeTOTP, time.Now().UTC())
	if err := repo.ReplacePending(ctx, m); err != nil {
		t.Fatalf("ReplacePending: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Activate(ctx, m.ID, Activation{At: time.Now().UTC()})
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, ErrNotPending):
			t.Errorf("unexpected err: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
