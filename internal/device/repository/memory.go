package repository

import (
	"context"
	"sync"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/device/domain"
)

// MemoryRepository is an in-memory device repository for tests and DB-less
// dev runs. Keyed on (cupid, fingerprint hash) like the unique index.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.TrustedDevice
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.TrustedDevice)}
}

func key(cupid, fingerprintHash string) string { return cupid + "\x00" + fingerprintHash }

// Upsert creates or refreshes the binding for the (cupid, fingerprint) pair.
func (r *MemoryRepository) Upsert(ctx context.Context, d *domain.TrustedDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(d.Cupid, d.FingerprintHash)
	if existing, ok := r.m[k]; ok {
		existing.Status = d.Status
		existing.TrustedAt = d.TrustedAt
		existing.ExpiresAt = d.ExpiresAt
		return nil
	}
	d2 := *d
	r.m[k] = &d2
	return nil
}

// GetByFingerprint returns the binding for the user and fingerprint.
func (r *MemoryRepository) GetByFingerprint(ctx context.Context, cupid, fingerprintHash string) (*domain.TrustedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.m[key(cupid, fingerprintHash)]; ok {
		d2 := *d
		return &d2, nil
	}
	return nil, nil
}

// UpdateStatus sets the binding status.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.m {
		if d.ID == id {
			d.Status = status
		}
	}
	return nil
}

// RevokeAllForUser revokes every ACTIVE binding of the user.
func (r *MemoryRepository) RevokeAllForUser(ctx context.Context, cupid string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.m {
		if d.Cupid == cupid && d.Status == domain.StatusActive {
			d.Status = domain.StatusRevoked
			n++
		}
	}
	return n, nil
}

// TouchLastUsed records a trusted login on the binding.
func (r *MemoryRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.m {
		if d.ID == id {
			at2 := at
			d.LastUsedAt = &at2
		}
	}
	return nil
}

// ExpireBefore flips ACTIVE bindings past their deadline to EXPIRED.
func (r *MemoryRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.m {
		if d.Status == domain.StatusActive && d.ExpiresAt.Before(cutoff) {
			d.Status = domain.StatusExpired
			n++
		}
	}
	return n, nil
}
