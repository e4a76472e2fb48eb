// Package token owns the server-side token lifecycle: issuance, rotation,
// reuse detection, and revocation. JWTs are signed by the security package;
// this package tracks them by hash so a presented value can be revoked or
// recognized as replayed.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	sessiondomain "github.com/majafary/ciam-claude-sub001/internal/session/domain"
	sessionrepo "github.com/majafary/ciam-claude-sub001/internal/session/repository"
	"github.com/majafary/ciam-claude-sub001/internal/token/domain"
	"github.com/majafary/ciam-claude-sub001/internal/token/repository"
)

var (
	// ErrTokenInvalid is returned when the presented value fails JWT
	// validation or matches no issued token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when the token is past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the token was explicitly revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReused is returned when an already-rotated refresh token is
	// presented again. The whole session is revoked as a side effect.
	ErrTokenReused = errors.New("refresh token reuse detected")
	// ErrSessionNotActive is returned when the backing session is gone.
	ErrSessionNotActive = errors.New("session not active")
)

// Set is the triple issued when a flow completes or a refresh rotates.
type Set struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	IDToken          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Introspection is the result of inspecting a presented access token.
type Introspection struct {
	Active    bool
	Cupid     string
	SessionID string
	Roles     []string
	ExpiresAt time.Time
}

// ProfileResolver looks up the subject profile for the ID token reissued on
// rotation. May be nil; then the rotated ID token carries no profile claims.
type ProfileResolver func(ctx context.Context, cupid string) (security.Profile, error)

// Manager issues, rotates, and revokes session tokens.
type Manager struct {
	provider *security.TokenProvider
	tokens   repository.Repository
	sessions sessionrepo.Repository
	uow      db.UnitOfWork
	resolve  ProfileResolver
	now      func() time.Time
}

// NewManager returns a Manager. Compound writes (rotation, session-wide
// revocation) run inside the given unit of work.
func NewManager(provider *security.TokenProvider, tokens repository.Repository, sessions sessionrepo.Repository, uow db.UnitOfWork, resolve ProfileResolver) *Manager {
	return &Manager{
		provider: provider,
		tokens:   tokens,
		sessions: sessions,
		uow:      uow,
		resolve:  resolve,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IssueSessionTokens signs and records the access, refresh, and ID tokens for
// a freshly created session. The refresh row is the root of the rotation
// chain; parentID is empty.
func (m *Manager) IssueSessionTokens(ctx context.Context, s *sessiondomain.Session, profile security.Profile, roles []string) (*Set, error) {
	return m.issue(ctx, s.ID, s.Cupid, profile, roles, "")
}

func (m *Manager) issue(ctx context.Context, sessionID, cupid string, profile security.Profile, roles []string, parentRefreshID string) (*Set, error) {
	access, accessJTI, accessExp, err := m.provider.IssueAccess(sessionID, cupid, roles)
	if err != nil {
		return nil, err
	}
	refresh, refreshJTI, refreshExp, err := m.provider.IssueRefresh(sessionID, cupid, roles)
	if err != nil {
		return nil, err
	}
	id, idJTI, idExp, err := m.provider.IssueID(sessionID, cupid, profile)
	if err != nil {
		return nil, err
	}

	now := m.now()
	rows := []*domain.Token{
		{ID: accessJTI, SessionID: sessionID, Type: domain.TypeAccess,
			Hash: security.HashValue(access), Status: domain.StatusActive,
			CreatedAt: now, ExpiresAt: accessExp},
		{ID: refreshJTI, SessionID: sessionID, ParentTokenID: parentRefreshID, Type: domain.TypeRefresh,
			Hash: security.HashValue(refresh), Status: domain.StatusActive,
			CreatedAt: now, ExpiresAt: refreshExp},
		{ID: idJTI, SessionID: sessionID, Type: domain.TypeID,
			Hash: security.HashValue(id), Status: domain.StatusActive,
			CreatedAt: now, ExpiresAt: idExp},
	}
	for _, row := range rows {
		if err := m.tokens.Create(ctx, row); err != nil {
			return nil, err
		}
	}
	return &Set{
		SessionID:        sessionID,
		AccessToken:      access,
		RefreshToken:     refresh,
		IDToken:          id,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Rotate exchanges a live refresh token for a fresh token set. The old
// refresh row moves to ROTATED and the new one links back to it. Presenting
// an already-rotated or revoked value is treated as theft: every token of the
// session is revoked, the session is terminated, and ErrTokenReused is
// returned.
func (m *Manager) Rotate(ctx context.Context, refreshValue string) (*Set, error) {
	// A signature-valid token past its exp still resolves its row: a rotated
	// token presented after natural expiry is reuse, not mere expiry.
	claims, err := m.provider.ValidateRefresh(refreshValue)
	if err != nil && !errors.Is(err, security.ErrExpiredToken) {
		return nil, ErrTokenInvalid
	}
	jwtExpired := err != nil
	row, err := m.tokens.GetByHash(ctx, security.HashValue(refreshValue))
	if err != nil {
		return nil, err
	}
	if row == nil || row.Type != domain.TypeRefresh {
		return nil, ErrTokenInvalid
	}

	now := m.now()
	switch row.Status {
	case domain.StatusRotated, domain.StatusRevoked:
		if err := m.killSession(ctx, row.SessionID, sessiondomain.RevokedBySystem, "refresh token reuse"); err != nil {
			return nil, err
		}
		return nil, ErrTokenReused
	case domain.StatusExpired:
		return nil, ErrTokenExpired
	}
	if jwtExpired || !now.Before(row.ExpiresAt) {
		_, _ = m.tokens.UpdateStatusIf(ctx, row.ID, domain.StatusActive, domain.StatusExpired, nil)
		return nil, ErrTokenExpired
	}

	sess, err := m.sessions.GetByID(ctx, row.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.Active(now) {
		return nil, ErrSessionNotActive
	}

	var profile security.Profile
	if m.resolve != nil {
		profile, err = m.resolve(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
	}

	var set *Set
	err = m.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		moved, err := m.tokens.UpdateStatusIf(ctx, row.ID, domain.StatusActive, domain.StatusRotated, nil)
		if err != nil {
			return err
		}
		if !moved {
			// Another request rotated it between our read and write.
			return ErrTokenReused
		}
		// The access and ID tokens issued alongside the old refresh are
		// superseded with it.
		if _, err := m.tokens.RotateActiveByTypes(ctx, sess.ID, []domain.Type{domain.TypeAccess, domain.TypeID}); err != nil {
			return err
		}
		set, err = m.issue(ctx, sess.ID, claims.Subject, profile, claims.Roles, row.ID)
		if err != nil {
			return err
		}
		return m.sessions.TouchLastSeen(ctx, sess.ID, now)
	})
	if err != nil {
		if errors.Is(err, ErrTokenReused) {
			if kerr := m.killSession(ctx, row.SessionID, sessiondomain.RevokedBySystem, "refresh token reuse"); kerr != nil {
				return nil, kerr
			}
		}
		return nil, err
	}
	return set, nil
}

// ValidateRefresh resolves a presented refresh value to its live row with
// distinct errors for each failure mode. Used by logout, which must accept
// only a live refresh token.
func (m *Manager) ValidateRefresh(ctx context.Context, refreshValue string) (*domain.Token, error) {
	_, err := m.provider.ValidateRefresh(refreshValue)
	if err != nil && !errors.Is(err, security.ErrExpiredToken) {
		return nil, ErrTokenInvalid
	}
	jwtExpired := err != nil
	row, err := m.tokens.GetByHash(ctx, security.HashValue(refreshValue))
	if err != nil {
		return nil, err
	}
	if row == nil || row.Type != domain.TypeRefresh {
		return nil, ErrTokenInvalid
	}
	switch row.Status {
	case domain.StatusRevoked:
		return nil, ErrTokenRevoked
	case domain.StatusRotated:
		return nil, ErrTokenReused
	case domain.StatusExpired:
		return nil, ErrTokenExpired
	}
	if jwtExpired || !m.now().Before(row.ExpiresAt) {
		_, _ = m.tokens.UpdateStatusIf(ctx, row.ID, domain.StatusActive, domain.StatusExpired, nil)
		return nil, ErrTokenExpired
	}
	return row, nil
}

// RevokeToken revokes the token matching the presented value and every token
// descended from it in the rotation chain.
func (m *Manager) RevokeToken(ctx context.Context, value, by, reason string) error {
	row, err := m.tokens.GetByHash(ctx, security.HashValue(value))
	if err != nil {
		return err
	}
	if row == nil {
		return ErrTokenInvalid
	}
	return m.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		return m.revokeChain(ctx, row.ID)
	})
}

// revokeChain revokes the token and walks its descendants breadth-first.
func (m *Manager) revokeChain(ctx context.Context, id string) error {
	now := m.now()
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, err := m.tokens.UpdateStatusIf(ctx, cur, domain.StatusActive, domain.StatusRevoked, &now); err != nil {
			return err
		}
		if _, err := m.tokens.UpdateStatusIf(ctx, cur, domain.StatusRotated, domain.StatusRevoked, &now); err != nil {
			return err
		}
		children, err := m.tokens.ListChildren(ctx, cur)
		if err != nil {
			return err
		}
		for _, c := range children {
			queue = append(queue, c.ID)
		}
	}
	return nil
}

// RevokeBySession revokes every token of the session and terminates it.
func (m *Manager) RevokeBySession(ctx context.Context, sessionID, by, reason string) error {
	return m.killSession(ctx, sessionID, by, reason)
}

// RevokeByUser terminates every ACTIVE session of the user and revokes all
// tokens under them.
func (m *Manager) RevokeByUser(ctx context.Context, cupid, by, reason string) error {
	sessions, err := m.sessions.ListActiveByCupid(ctx, cupid)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := m.killSession(ctx, s.ID, by, reason); err != nil {
			return err
		}
	}
	return nil
}

// Logout terminates the session behind a live refresh token.
func (m *Manager) Logout(ctx context.Context, refreshValue string) error {
	row, err := m.ValidateRefresh(ctx, refreshValue)
	if err != nil {
		return err
	}
	now := m.now()
	return m.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		if _, err := m.tokens.RevokeAllBySession(ctx, row.SessionID, now); err != nil {
			return err
		}
		return m.sessions.Terminate(ctx, row.SessionID, sessiondomain.StatusLoggedOut,
			sessiondomain.RevokedByUser, "logout", now)
	})
}

// Introspect reports whether a presented access token is live, with its
// claims when it is. A revoked row or dead session reads as inactive even
// while the JWT signature still verifies.
func (m *Manager) Introspect(ctx context.Context, accessValue string) (*Introspection, error) {
	claims, err := m.provider.ValidateAccess(accessValue)
	if err != nil {
		return &Introspection{Active: false}, nil
	}
	row, err := m.tokens.GetByHash(ctx, security.HashValue(accessValue))
	if err != nil {
		return nil, err
	}
	now := m.now()
	if row == nil || !row.Live(now) {
		return &Introspection{Active: false}, nil
	}
	sess, err := m.sessions.GetByID(ctx, row.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.Active(now) {
		return &Introspection{Active: false}, nil
	}
	return &Introspection{
		Active:    true,
		Cupid:     claims.Subject,
		SessionID: claims.SessionID,
		Roles:     claims.Roles,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (m *Manager) killSession(ctx context.Context, sessionID, by, reason string) error {
	now := m.now()
	return m.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		if _, err := m.tokens.RevokeAllBySession(ctx, sessionID, now); err != nil {
			return err
		}
		return m.sessions.Terminate(ctx, sessionID, sessiondomain.StatusRevoked, by, reason, now)
	})
}
