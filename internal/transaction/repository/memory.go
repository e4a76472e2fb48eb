package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
)

// MemoryRepository is an in-memory transaction repository for tests and
// DB-less dev runs.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.AuthTransaction
}

// NewMemoryRepository returns an empty in-memory transaction repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.AuthTransaction)}
}

// Create stores a copy of the transaction.
func (r *MemoryRepository) Create(ctx context.Context, t *domain.AuthTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.ID] = &t2
	return nil
}

// GetByID returns the transaction for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.AuthTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.m[id]; ok {
		t2 := *t
		return &t2, nil
	}
	return nil, nil
}

// UpdateStatusIf transitions the transaction and stores the payload snapshot.
func (r *MemoryRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, payload domain.Payload) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.Payload = payload
	return true, nil
}

// ExpireAllPending marks every PENDING transaction of the context EXPIRED.
func (r *MemoryRepository) ExpireAllPending(ctx context.Context, contextID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.m {
		if t.ContextID == contextID && t.Status == domain.StatusPending {
			t.Status = domain.StatusExpired
			n++
		}
	}
	return n, nil
}

// MaxSequence returns the highest sequence number used in the context.
func (r *MemoryRepository) MaxSequence(ctx context.Context, contextID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, t := range r.m {
		if t.ContextID == contextID && t.SequenceNumber > max {
			max = t.SequenceNumber
		}
	}
	return max, nil
}

// DeleteExpiredBefore removes terminal transaction rows created before cutoff.
func (r *MemoryRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.m {
		if t.Status != domain.StatusPending && t.CreatedAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}
