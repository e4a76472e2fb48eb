package device

import (
	"context"
	"testing"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/device/domain"
	"github.com/majafary/ciam-claude-sub001/internal/device/repository"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return NewRegistry(repo, ttl), repo
}

func TestRegistry_TrustAndCheck(t *testing.T) {
	r, _ := newTestRegistry(t, 30*24*time.Hour)
	ctx := context.Background()

	d, err := r.Trust(ctx, "cupid-1", "guid-1", "fp-hash-1")
	if err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if d.ID == "" {
		t.Fatal("expected device id")
	}

	ok, got, err := r.IsTrusted(ctx, "cupid-1", "fp-hash-1")
	if err != nil {
		t.Fatalf("IsTrusted: %v", err)
	}
	if !ok || got.ID != d.ID {
		t.Fatalf("expected trusted binding, got ok=%v d=%+v", ok, got)
	}

	// Another user's identical fingerprint is not trusted.
	ok, _, _ = r.IsTrusted(ctx, "cupid-2", "fp-hash-1")
	if ok {
		t.Error("trust must be scoped to the user")
	}
	// Empty fingerprint never matches.
	state, _, _ := r.State(ctx, "cupid-1", "")
	if state != TrustUnknown {
		t.Errorf("empty fingerprint state = %s, want UNKNOWN", state)
	}
}

func TestRegistry_LazyExpiry(t *testing.T) {
	r, repo := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	d, _ := r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	r.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	state, _, err := r.State(ctx, "cupid-1", "fp-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != TrustExpired {
		t.Fatalf("state = %s, want EXPIRED", state)
	}
	// Expiry is persisted on read.
	stored, _ := repo.GetByFingerprint(ctx, "cupid-1", "fp-1")
	if stored.Status != domain.StatusExpired {
		t.Errorf("stored status = %s, want EXPIRED", stored.Status)
	}
	if ok, _, _ := r.IsTrusted(ctx, "cupid-1", "fp-1"); ok {
		t.Error("expired binding must not be trusted")
	}
	_ = d
}

func TestRegistry_RebindRestartsClock(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	first, _ := r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	r.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if state, _, _ := r.State(ctx, "cupid-1", "fp-1"); state != TrustExpired {
		t.Fatalf("precondition: want EXPIRED, got %s", state)
	}

	// Completing a fresh MFA and re-binding revives the same record.
	second, err := r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	if err != nil {
		t.Fatalf("re-Trust: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("rebind minted a new id: %s vs %s", second.ID, first.ID)
	}
	if ok, _, _ := r.IsTrusted(ctx, "cupid-1", "fp-1"); !ok {
		t.Error("rebound device must be trusted again")
	}
}

func TestRegistry_Revoke(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	d, _ := r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	if err := r.Revoke(ctx, d.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	state, _, _ := r.State(ctx, "cupid-1", "fp-1")
	if state != TrustRevoked {
		t.Errorf("state = %s, want REVOKED", state)
	}
}

func TestRegistry_RevokeAllForUser(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	_, _ = r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	_, _ = r.Trust(ctx, "cupid-1", "guid-1", "fp-2")
	_, _ = r.Trust(ctx, "cupid-2", "guid-2", "fp-1")

	n, err := r.RevokeAllForUser(ctx, "cupid-1")
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 2 {
		t.Errorf("revoked %d bindings, want 2", n)
	}
	if ok, _, _ := r.IsTrusted(ctx, "cupid-2", "fp-1"); !ok {
		t.Error("other user's binding must survive")
	}
}

func TestRegistry_SweepExpired(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	_, _ = r.Trust(ctx, "cupid-1", "guid-1", "fp-1")
	r.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	n, err := r.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d bindings, want 1", n)
	}
}
