// Package authcontext owns the one-per-login-attempt AuthContext: creation,
// lazy expiry, subject binding, and completion. A completed context is
// immutable and never reused across unrelated logins.
package authcontext

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/majafary/ciam-claude-sub001/internal/authcontext/domain"
	"github.com/majafary/ciam-claude-sub001/internal/authcontext/repository"
)

var (
	// ErrContextNotFound is returned when the context id is unknown.
	ErrContextNotFound = errors.New("auth context not found")
	// ErrContextExpired is returned when the flow TTL has passed.
	ErrContextExpired = errors.New("auth context expired")
	// ErrContextCompleted is returned when a step is attempted on a finished flow.
	ErrContextCompleted = errors.New("auth context already completed")
)

// Meta is the connection metadata captured when a flow opens.
type Meta struct {
	AppID                 string
	AppVersion            string
	IPAddress             string
	UserAgent             string
	DeviceFingerprintHash string
}

// Store is the flow context store.
type Store struct {
	repo repository.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore returns a Store creating contexts with the given flow TTL.
func NewStore(repo repository.Repository, ttl time.Duration) *Store {
	return &Store{repo: repo, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Create opens a new AuthContext for a login attempt. Subject identifiers stay
// empty until BindSubject is called with the verified identity.
func (s *Store) Create(ctx context.Context, meta Meta) (*domain.AuthContext, error) {
	now := s.now()
	c := &domain.AuthContext{
		ID:                    uuid.New().String(),
		AppID:                 meta.AppID,
		AppVersion:            meta.AppVersion,
		IPAddress:             meta.IPAddress,
		UserAgent:             meta.UserAgent,
		DeviceFingerprintHash: meta.DeviceFingerprintHash,
		CreatedAt:             now,
		ExpiresAt:             now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the context for id if it is still live. Expiry is evaluated on
// read: an expired context yields ErrContextExpired and is completed with the
// EXPIRED outcome so the row cannot be revived.
func (s *Store) Get(ctx context.Context, id string) (*domain.AuthContext, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContextNotFound
	}
	if c.Completed() {
		return nil, ErrContextCompleted
	}
	if c.Expired(s.now()) {
		if err := s.repo.Complete(ctx, id, domain.OutcomeExpired, s.now()); err != nil {
			return nil, err
		}
		return nil, ErrContextExpired
	}
	return c, nil
}

// BindSubject records the verified subject identifiers on the context.
func (s *Store) BindSubject(ctx context.Context, id, cupid, guid string) error {
	return s.repo.BindSubject(ctx, id, cupid, guid)
}

// SetRequiresAdditionalSteps flags the context as mid-flow.
func (s *Store) SetRequiresAdditionalSteps(ctx context.Context, id string, v bool) error {
	return s.repo.SetRequiresAdditionalSteps(ctx, id, v)
}

// Complete records the terminal outcome; the context is immutable afterwards.
func (s *Store) Complete(ctx context.Context, id string, outcome domain.Outcome) error {
	return s.repo.Complete(ctx, id, outcome, s.now())
}
