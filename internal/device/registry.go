// Package device tracks trusted device bindings. A live binding lets the user
// skip MFA at login; expiry is evaluated lazily on each check so a stale
// binding never grants a skip, sweep or no sweep.
package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/majafary/ciam-claude-sub001/internal/device/domain"
	"github.com/majafary/ciam-claude-sub001/internal/device/repository"
)

// TrustState is the outcome of a trust check.
type TrustState string

const (
	// TrustUnknown means the device has never been bound for this user.
	TrustUnknown TrustState = "UNKNOWN"
	// TrustActive means the binding is live and MFA can be skipped.
	TrustActive TrustState = "TRUSTED"
	// TrustExpired means the binding existed but aged out.
	TrustExpired TrustState = "EXPIRED"
	// TrustRevoked means the binding was explicitly revoked.
	TrustRevoked TrustState = "REVOKED"
)

// Registry manages device trust bindings with a fixed trust lifetime.
type Registry struct {
	repo repository.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewRegistry returns a Registry creating bindings with the given lifetime.
func NewRegistry(repo repository.Repository, ttl time.Duration) *Registry {
	return &Registry{repo: repo, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Trust binds the fingerprint to the user, or refreshes an existing binding.
// Re-binding restarts the trust clock, including for an expired or revoked
// binding of the same device.
func (r *Registry) Trust(ctx context.Context, cupid, guid, fingerprintHash string) (*domain.TrustedDevice, error) {
	now := r.now()
	existing, err := r.repo.GetByFingerprint(ctx, cupid, fingerprintHash)
	if err != nil {
		return nil, err
	}
	d := &domain.TrustedDevice{
		ID:              uuid.New().String(),
		GUID:            guid,
		Cupid:           cupid,
		FingerprintHash: fingerprintHash,
		Status:          domain.StatusActive,
		TrustedAt:       now,
		ExpiresAt:       now.Add(r.ttl),
	}
	if existing != nil {
		d.ID = existing.ID
	}
	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// State evaluates the trust of a fingerprint for the user. An ACTIVE binding
// past its deadline is flipped to EXPIRED before reporting, so the check and
// the stored state never disagree.
func (r *Registry) State(ctx context.Context, cupid, fingerprintHash string) (TrustState, *domain.TrustedDevice, error) {
	if fingerprintHash == "" {
		return TrustUnknown, nil, nil
	}
	d, err := r.repo.GetByFingerprint(ctx, cupid, fingerprintHash)
	if err != nil {
		return TrustUnknown, nil, err
	}
	if d == nil {
		return TrustUnknown, nil, nil
	}
	switch d.Status {
	case domain.StatusRevoked:
		return TrustRevoked, d, nil
	case domain.StatusExpired:
		return TrustExpired, d, nil
	}
	if !r.now().Before(d.ExpiresAt) {
		if err := r.repo.UpdateStatus(ctx, d.ID, domain.StatusExpired); err != nil {
			return TrustUnknown, nil, err
		}
		d.Status = domain.StatusExpired
		return TrustExpired, d, nil
	}
	return TrustActive, d, nil
}

// IsTrusted reports whether the fingerprint carries a live binding and, when
// it does, records the use.
func (r *Registry) IsTrusted(ctx context.Context, cupid, fingerprintHash string) (bool, *domain.TrustedDevice, error) {
	state, d, err := r.State(ctx, cupid, fingerprintHash)
	if err != nil {
		return false, nil, err
	}
	if state != TrustActive {
		return false, nil, nil
	}
	if err := r.repo.TouchLastUsed(ctx, d.ID, r.now()); err != nil {
		return false, nil, err
	}
	return true, d, nil
}

// Revoke revokes a single binding.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	return r.repo.UpdateStatus(ctx, id, domain.StatusRevoked)
}

// RevokeAllForUser revokes every live binding of the user.
func (r *Registry) RevokeAllForUser(ctx context.Context, cupid string) (int64, error) {
	return r.repo.RevokeAllForUser(ctx, cupid)
}

// SweepExpired flips aged-out ACTIVE bindings to EXPIRED in bulk. The lazy
// check in State already protects logins; the sweep just keeps the table
// honest for reporting.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	return r.repo.ExpireBefore(ctx, r.now())
}
