package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/audit/domain"
)

// MemoryRepository is an in-memory audit log for tests and DB-less dev runs.
type MemoryRepository struct {
	mu   sync.RWMutex
	list []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create appends the audit log entry.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a2 := *a
	r.list = append(r.list, &a2)
	return nil
}

// GetByID returns the entry for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.list {
		if a.ID == id {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

// ListByCupid returns the user's events, newest first.
func (r *MemoryRepository) ListByCupid(ctx context.Context, cupid string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*domain.AuditLog
	for i := len(r.list) - 1; i >= 0; i-- {
		if r.list[i].Cupid == cupid {
			a2 := *r.list[i]
			matched = append(matched, &a2)
		}
	}
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// DeleteBefore removes events older than cutoff.
func (r *MemoryRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*domain.AuditLog
	var n int64
	for _, a := range r.list {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.list = kept
	return n, nil
}

// All returns a snapshot of every entry. For tests.
func (r *MemoryRepository) All() []*domain.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.AuditLog, 0, len(r.list))
	for _, a := range r.list {
		a2 := *a
		out = append(out, &a2)
	}
	return out
}
