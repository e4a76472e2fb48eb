package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/esign/domain"
)

// MemoryRequirementRepository is an in-memory requirement store for tests and
// DB-less dev runs.
type MemoryRequirementRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Requirement
}

// NewMemoryRequirementRepository returns an empty in-memory requirement store.
func NewMemoryRequirementRepository() *MemoryRequirementRepository {
	return &MemoryRequirementRepository{m: make(map[string]*domain.Requirement)}
}

// Upsert sets the user's pending requirement, replacing any existing one.
func (r *MemoryRequirementRepository) Upsert(ctx context.Context, req *domain.Requirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req2 := *req
	r.m[req.Cupid] = &req2
	return nil
}

// GetByCupid returns the user's pending requirement, or nil if none.
func (r *MemoryRequirementRepository) GetByCupid(ctx context.Context, cupid string) (*domain.Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if req, ok := r.m[cupid]; ok {
		req2 := *req
		return &req2, nil
	}
	return nil, nil
}

// Delete clears the user's pending requirement.
func (r *MemoryRequirementRepository) Delete(ctx context.Context, cupid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, cupid)
	return nil
}

// RecordDecline stamps a decline on the matching pending requirement.
func (r *MemoryRequirementRepository) RecordDecline(ctx context.Context, cupid, documentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[cupid]
	if !ok || req.DocumentID != documentID {
		return nil
	}
	req.DeclineCount++
	at2 := at
	req.LastDeclinedAt = &at2
	return nil
}

// MemoryAcceptanceRepository is an in-memory acceptance log for tests and
// DB-less dev runs.
type MemoryAcceptanceRepository struct {
	mu   sync.RWMutex
	list []*domain.Acceptance
}

// NewMemoryAcceptanceRepository returns an empty in-memory acceptance log.
func NewMemoryAcceptanceRepository() *MemoryAcceptanceRepository {
	return &MemoryAcceptanceRepository{}
}

// Create appends an acceptance record.
func (r *MemoryAcceptanceRepository) Create(ctx context.Context, a *domain.Acceptance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a2 := *a
	r.list = append(r.list, &a2)
	return nil
}

// Exists reports whether the user has accepted the document.
func (r *MemoryAcceptanceRepository) Exists(ctx context.Context, cupid, documentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.list {
		if a.Cupid == cupid && a.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}
