package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/esign/domain"
)

// RequirementRepository stores the single pending eSign obligation per user.
// Lookups return (nil, nil) when no row matches.
type RequirementRepository interface {
	// Upsert sets the user's pending requirement, replacing any existing one.
	Upsert(ctx context.Context, r *domain.Requirement) error
	// GetByCupid returns the user's pending requirement.
	GetByCupid(ctx context.Context, cupid string) (*domain.Requirement, error)
	// Delete clears the user's pending requirement.
	Delete(ctx context.Context, cupid string) error
	// RecordDecline stamps a decline on the pending requirement when it
	// matches the document. A mismatched or absent requirement is a no-op.
	RecordDecline(ctx context.Context, cupid, documentID string, at time.Time) error
}

// AcceptanceRepository stores the append-only acceptance log.
type AcceptanceRepository interface {
	Create(ctx context.Context, a *domain.Acceptance) error
	// Exists reports whether the user has accepted the document.
	Exists(ctx context.Context, cupid, documentID string) (bool, error)
}
