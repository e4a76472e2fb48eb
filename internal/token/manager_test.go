package token

import (
	"context"
	"testing"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	sessiondomain "github.com/majafary/ciam-claude-sub001/internal/session/domain"
	sessionrepo "github.com/majafary/ciam-claude-sub001/internal/session/repository"
	"github.com/majafary/ciam-claude-sub001/internal/token/domain"
	"github.com/majafary/ciam-claude-sub001/internal/token/repository"
)

func newTestManager(t *testing.T) (*Manager, *repository.MemoryRepository, *sessionrepo.MemoryRepository) {
	t.Helper()
	provider, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	tokens := repository.NewMemoryRepository()
	sessions := sessionrepo.NewMemoryRepository()
	return NewManager(provider, tokens, sessions, db.NewMemoryUnitOfWork(), nil), tokens, sessions
}

func newTestSession(t *testing.T, sessions *sessionrepo.MemoryRepository) *sessiondomain.Session {
	t.Helper()
	now := time.Now().UTC()
	s := &sessiondomain.Session{
		ID:        "sess-1",
		Cupid:     "cupid-1",
		ContextID: "ctx-1",
		Status:    sessiondomain.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := sessions.Create(context.Background(), s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestManager_IssueAndIntrospect(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)

	set, err := m.IssueSessionTokens(ctx, sess, security.Profile{GUID: "g1", Username: "mfauser"}, []string{"customer"})
	if err != nil {
		t.Fatalf("IssueSessionTokens: %v", err)
	}
	if set.AccessToken == "" || set.RefreshToken == "" || set.IDToken == "" {
		t.Fatal("expected all three tokens")
	}

	intro, err := m.Introspect(ctx, set.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !intro.Active {
		t.Fatal("fresh access token must introspect active")
	}
	if intro.Cupid != "cupid-1" || intro.SessionID != "sess-1" {
		t.Errorf("claims mismatch: %+v", intro)
	}

	// Garbage never errors the endpoint, it just reads inactive.
	intro, err = m.Introspect(ctx, "not-a-jwt")
	if err != nil {
		t.Fatalf("Introspect garbage: %v", err)
	}
	if intro.Active {
		t.Error("garbage token must be inactive")
	}
}

func TestManager_RotateChain(t *testing.T) {
	m, tokens, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)
	profile := security.Profile{GUID: "g1"}

	set, err := m.IssueSessionTokens(ctx, sess, profile, nil)
	if err != nil {
		t.Fatalf("IssueSessionTokens: %v", err)
	}
	set2, err := m.Rotate(ctx, set.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if set2.RefreshToken == set.RefreshToken {
		t.Fatal("rotation must mint a new refresh value")
	}

	// Old row is ROTATED, new row links back to it.
	oldRow, _ := tokens.GetByHash(ctx, security.HashValue(set.RefreshToken))
	if oldRow.Status != domain.StatusRotated {
		t.Errorf("old refresh status = %s, want ROTATED", oldRow.Status)
	}
	newRow, _ := tokens.GetByHash(ctx, security.HashValue(set2.RefreshToken))
	if newRow.ParentTokenID != oldRow.ID {
		t.Errorf("chain broken: parent = %q, want %q", newRow.ParentTokenID, oldRow.ID)
	}

	// The old access token is superseded along with the refresh.
	intro, _ := m.Introspect(ctx, set.AccessToken)
	if intro.Active {
		t.Error("pre-rotation access token must be inactive")
	}
	intro, _ = m.Introspect(ctx, set2.AccessToken)
	if !intro.Active {
		t.Error("post-rotation access token must be active")
	}
}

func TestManager_ReuseRevokesWholeSession(t *testing.T) {
	m, tokens, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)
	profile := security.Profile{GUID: "g1"}

	set, _ := m.IssueSessionTokens(ctx, sess, profile, nil)
	set2, err := m.Rotate(ctx, set.RefreshToken)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	// Replaying the already-rotated R1 is theft: the session dies.
	if _, err := m.Rotate(ctx, set.RefreshToken); err != ErrTokenReused {
		t.Fatalf("want ErrTokenReused, got %v", err)
	}

	// The legitimate successor R2 is dead too.
	r2, _ := tokens.GetByHash(ctx, security.HashValue(set2.RefreshToken))
	if r2.Status != domain.StatusRevoked {
		t.Errorf("R2 status = %s, want REVOKED", r2.Status)
	}
	if _, err := m.Rotate(ctx, set2.RefreshToken); err != ErrTokenReused {
		t.Fatalf("rotating R2 after cascade: want ErrTokenReused, got %v", err)
	}

	stored, _ := sessions.GetByID(ctx, sess.ID)
	if stored.Status != sessiondomain.StatusRevoked {
		t.Errorf("session status = %s, want REVOKED", stored.Status)
	}
	// Access token from the second set no longer introspects active.
	intro, _ := m.Introspect(ctx, set2.AccessToken)
	if intro.Active {
		t.Error("access token must be inactive after reuse cascade")
	}
}

func TestManager_RevokeTokenCascadesToDescendants(t *testing.T) {
	m, tokens, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)
	profile := security.Profile{GUID: "g1"}

	set, _ := m.IssueSessionTokens(ctx, sess, profile, nil)
	set2, _ := m.Rotate(ctx, set.RefreshToken)
	set3, _ := m.Rotate(ctx, set2.RefreshToken)

	// Revoking the chain root takes every descendant with it.
	if err := m.RevokeToken(ctx, set.RefreshToken, "admin", "compromise"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	for i, v := range []string{set.RefreshToken, set2.RefreshToken, set3.RefreshToken} {
		row, _ := tokens.GetByHash(ctx, security.HashValue(v))
		if row.Status != domain.StatusRevoked {
			t.Errorf("refresh %d status = %s, want REVOKED", i+1, row.Status)
		}
	}
}

func TestManager_RotateUnknownToken(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	newTestSession(t, sessions)

	if _, err := m.Rotate(ctx, "garbage"); err != ErrTokenInvalid {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}

	// A well-formed JWT we never issued a row for is invalid too.
	provider, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	foreign, _, _, err := provider.IssueRefresh("sess-x", "cupid-x", nil)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := m.Rotate(ctx, foreign); err != ErrTokenInvalid {
		t.Fatalf("untracked refresh: want ErrTokenInvalid, got %v", err)
	}
}

// newExpiredManager issues tokens whose JWT exp is already in the past.
func newExpiredManager(t *testing.T) (*Manager, *repository.MemoryRepository, *sessionrepo.MemoryRepository) {
	t.Helper()
	provider, err := security.NewTestTokenProviderTTL(time.Minute, -time.Second, time.Minute)
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	tokens := repository.NewMemoryRepository()
	sessions := sessionrepo.NewMemoryRepository()
	return NewManager(provider, tokens, sessions, db.NewMemoryUnitOfWork(), nil), tokens, sessions
}

func TestManager_RotateExpiredRefresh(t *testing.T) {
	m, tokens, sessions := newExpiredManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)

	set, err := m.IssueSessionTokens(ctx, sess, security.Profile{GUID: "g1"}, nil)
	if err != nil {
		t.Fatalf("IssueSessionTokens: %v", err)
	}
	if _, err := m.Rotate(ctx, set.RefreshToken); err != ErrTokenExpired {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
	// Expiry is persisted on first read.
	row, _ := tokens.GetByHash(ctx, security.HashValue(set.RefreshToken))
	if row.Status != domain.StatusExpired {
		t.Errorf("row status = %s, want EXPIRED", row.Status)
	}
	if _, err := m.Rotate(ctx, set.RefreshToken); err != ErrTokenExpired {
		t.Fatalf("second rotate: want ErrTokenExpired, got %v", err)
	}
	if _, err := m.ValidateRefresh(ctx, set.RefreshToken); err != ErrTokenExpired {
		t.Fatalf("ValidateRefresh: want ErrTokenExpired, got %v", err)
	}
}

func TestManager_ExpiredRotatedRefreshIsReuse(t *testing.T) {
	m, tokens, sessions := newExpiredManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)

	set, err := m.IssueSessionTokens(ctx, sess, security.Profile{GUID: "g1"}, nil)
	if err != nil {
		t.Fatalf("IssueSessionTokens: %v", err)
	}
	// The row was rotated while live; the JWT has since passed its exp.
	row, _ := tokens.GetByHash(ctx, security.HashValue(set.RefreshToken))
	if _, err := tokens.UpdateStatusIf(ctx, row.ID, domain.StatusActive, domain.StatusRotated, nil); err != nil {
		t.Fatalf("UpdateStatusIf: %v", err)
	}

	if _, err := m.Rotate(ctx, set.RefreshToken); err != ErrTokenReused {
		t.Fatalf("want ErrTokenReused, got %v", err)
	}
	stored, _ := sessions.GetByID(ctx, sess.ID)
	if stored.Status != sessiondomain.StatusRevoked {
		t.Errorf("session status = %s, want REVOKED", stored.Status)
	}
}

func TestManager_RotateDeadSession(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)
	profile := security.Profile{GUID: "g1"}

	set, _ := m.IssueSessionTokens(ctx, sess, profile, nil)
	_ = sessions.Terminate(ctx, sess.ID, sessiondomain.StatusRevoked, "admin", "test", time.Now().UTC())

	if _, err := m.Rotate(ctx, set.RefreshToken); err != ErrSessionNotActive {
		t.Fatalf("want ErrSessionNotActive, got %v", err)
	}
}

func TestManager_Logout(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	sess := newTestSession(t, sessions)
	profile := security.Profile{GUID: "g1"}

	set, _ := m.IssueSessionTokens(ctx, sess, profile, nil)
	if err := m.Logout(ctx, set.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	stored, _ := sessions.GetByID(ctx, sess.ID)
	if stored.Status != sessiondomain.StatusLoggedOut {
		t.Errorf("session status = %s, want LOGGED_OUT", stored.Status)
	}
	// Logged-out refresh reads as revoked, not reused: no cascade to trip.
	if err := m.Logout(ctx, set.RefreshToken); err != ErrTokenRevoked {
		t.Fatalf("second logout: want ErrTokenRevoked, got %v", err)
	}
	intro, _ := m.Introspect(ctx, set.AccessToken)
	if intro.Active {
		t.Error("access token must be inactive after logout")
	}
}

func TestManager_RevokeByUser(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()
	profile := security.Profile{GUID: "g1"}

	var sets []*Set
	for _, id := range []string{"sess-a", "sess-b"} {
		s := &sessiondomain.Session{
			ID: id, Cupid: "cupid-1", ContextID: "ctx-" + id,
			Status: sessiondomain.StatusActive, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
		set, err := m.IssueSessionTokens(ctx, s, profile, nil)
		if err != nil {
			t.Fatalf("IssueSessionTokens: %v", err)
		}
		sets = append(sets, set)
	}

	if err := m.RevokeByUser(ctx, "cupid-1", "admin", "account compromise"); err != nil {
		t.Fatalf("RevokeByUser: %v", err)
	}
	for i, set := range sets {
		intro, _ := m.Introspect(ctx, set.AccessToken)
		if intro.Active {
			t.Errorf("session %d access token still active", i)
		}
	}
}
