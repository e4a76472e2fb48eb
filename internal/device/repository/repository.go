package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/device/domain"
)

// Repository is the trusted device persistence contract. Lookups return
// (nil, nil) when no row matches.
type Repository interface {
	// Upsert creates the binding or refreshes an existing one for the same
	// (cupid, fingerprint hash) pair.
	Upsert(ctx context.Context, d *domain.TrustedDevice) error
	// GetByFingerprint returns the binding for the user and fingerprint.
	GetByFingerprint(ctx context.Context, cupid, fingerprintHash string) (*domain.TrustedDevice, error)
	// UpdateStatus sets the binding status.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// RevokeAllForUser revokes every ACTIVE binding of the user.
	RevokeAllForUser(ctx context.Context, cupid string) (int64, error)
	// TouchLastUsed records a trusted login on the binding.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	// ExpireBefore flips ACTIVE bindings whose deadline passed before cutoff
	// to EXPIRED. Used by the background sweep.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
