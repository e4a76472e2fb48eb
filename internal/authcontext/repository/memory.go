package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/authcontext/domain"
)

// MemoryRepository is an in-memory auth context repository for tests and
// DB-less dev runs.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.AuthContext
}

// NewMemoryRepository returns an empty in-memory auth context repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.AuthContext)}
}

// GetByID returns the auth context for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.AuthContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.m[id]; ok {
		c2 := *c
		return &c2, nil
	}
	return nil, nil
}

// Create stores a copy of the auth context.
func (r *MemoryRepository) Create(ctx context.Context, c *domain.AuthContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c2 := *c
	r.m[c.ID] = &c2
	return nil
}

// BindSubject sets the verified subject identifiers on an uncompleted context.
func (r *MemoryRepository) BindSubject(ctx context.Context, id, cupid, guid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok && c.CompletedAt == nil {
		c.Cupid = cupid
		c.GUID = guid
	}
	return nil
}

// SetRequiresAdditionalSteps flags the context as needing further steps.
func (r *MemoryRepository) SetRequiresAdditionalSteps(ctx context.Context, id string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok && c.CompletedAt == nil {
		c.RequiresAdditionalSteps = v
	}
	return nil
}

// Complete records the terminal outcome on an uncompleted context.
func (r *MemoryRepository) Complete(ctx context.Context, id string, outcome domain.Outcome, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok && c.CompletedAt == nil {
		c.Outcome = outcome
		at2 := at
		c.CompletedAt = &at2
	}
	return nil
}
