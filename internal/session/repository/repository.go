package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/session/domain"
)

// Repository is the session persistence contract. Lookups return (nil, nil)
// when no row matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListActiveByCupid returns the user's sessions still in ACTIVE status.
	ListActiveByCupid(ctx context.Context, cupid string) ([]*domain.Session, error)
	// Terminate moves an ACTIVE session to a terminal status with revocation
	// metadata. Terminating an already-terminal session is a no-op.
	Terminate(ctx context.Context, id string, status domain.Status, by, reason string, at time.Time) error
	// TouchLastSeen records token activity on the session.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}
