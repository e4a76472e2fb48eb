package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/session/domain"
)

// MemoryRepository is an in-memory session repository for tests and DB-less
// dev runs.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

// Create stores a copy of the session.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

// GetByID returns the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.m[id]; ok {
		s2 := *s
		return &s2, nil
	}
	return nil, nil
}

// ListActiveByCupid returns the user's ACTIVE sessions.
func (r *MemoryRepository) ListActiveByCupid(ctx context.Context, cupid string) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.m {
		if s.Cupid == cupid && s.Status == domain.StatusActive {
			s2 := *s
			out = append(out, &s2)
		}
	}
	return out, nil
}

// Terminate moves an ACTIVE session to a terminal status.
func (r *MemoryRepository) Terminate(ctx context.Context, id string, status domain.Status, by, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.Status != domain.StatusActive {
		return nil
	}
	s.Status = status
	at2 := at
	s.RevokedAt = &at2
	s.RevokedBy = by
	s.RevocationReason = reason
	return nil
}

// TouchLastSeen records token activity on the session.
func (r *MemoryRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		at2 := at
		s.LastSeenAt = &at2
	}
	return nil
}
