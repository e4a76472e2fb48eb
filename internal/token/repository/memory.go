package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/token/domain"
)

// MemoryRepository is an in-memory token repository for tests and DB-less
// dev runs.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Token
}

// NewMemoryRepository returns an empty in-memory token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Token)}
}

// Create stores a copy of the token record.
func (r *MemoryRepository) Create(ctx context.Context, t *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.ID] = &t2
	return nil
}

// GetByID returns the token for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.m[id]; ok {
		t2 := *t
		return &t2, nil
	}
	return nil, nil
}

// GetByHash resolves a presented token value by its sha256 hex hash.
func (r *MemoryRepository) GetByHash(ctx context.Context, hash string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.m {
		if t.Hash == hash {
			t2 := *t
			return &t2, nil
		}
	}
	return nil, nil
}

// ListChildren returns the tokens whose parent is id.
func (r *MemoryRepository) ListChildren(ctx context.Context, id string) ([]*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Token
	for _, t := range r.m {
		if t.ParentTokenID == id {
			t2 := *t
			out = append(out, &t2)
		}
	}
	return out, nil
}

// UpdateStatusIf transitions the token and reports whether a row moved.
func (r *MemoryRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, revokedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if revokedAt != nil {
		at := *revokedAt
		t.RevokedAt = &at
	}
	return true, nil
}

// RotateActiveByTypes moves the session's ACTIVE rows of the given types to ROTATED.
func (r *MemoryRepository) RotateActiveByTypes(ctx context.Context, sessionID string, types []domain.Type) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.m {
		if t.SessionID != sessionID || t.Status != domain.StatusActive {
			continue
		}
		for _, typ := range types {
			if t.Type == typ {
				t.Status = domain.StatusRotated
				n++
				break
			}
		}
	}
	return n, nil
}

// RevokeAllBySession revokes every ACTIVE or ROTATED token of the session.
func (r *MemoryRepository) RevokeAllBySession(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.m {
		if t.SessionID == sessionID && (t.Status == domain.StatusActive || t.Status == domain.StatusRotated) {
			t.Status = domain.StatusRevoked
			at2 := at
			t.RevokedAt = &at2
			n++
		}
	}
	return n, nil
}

// DeleteExpiredBefore removes rows whose exp passed before cutoff.
func (r *MemoryRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.m {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}
