package repository

import (
	"context"
	"sync"

	"github.com/majafary/ciam-claude-sub001/internal/identity/domain"
)

// MemoryRepository is an in-memory user repository for tests and DB-less dev runs.
type MemoryRepository struct {
	mu         sync.RWMutex
	byCupid    map[string]*domain.User
	byUsername map[string]*domain.User
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byCupid:    make(map[string]*domain.User),
		byUsername: make(map[string]*domain.User),
	}
}

// GetByUsername returns the user for username, or nil if not found.
func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byUsername[username]; ok {
		u2 := *u
		return &u2, nil
	}
	return nil, nil
}

// GetByCupid returns the user for cupid, or nil if not found.
func (r *MemoryRepository) GetByCupid(ctx context.Context, cupid string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byCupid[cupid]; ok {
		u2 := *u
		return &u2, nil
	}
	return nil, nil
}

// Create stores a copy of the user.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u2 := *u
	r.byCupid[u.Cupid] = &u2
	r.byUsername[u.Username] = &u2
	return nil
}

// UpdateStatus sets the account-state signal for the user.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, cupid string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byCupid[cupid]; ok {
		u.Status = status
	}
	return nil
}
