package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/authcontext/domain"
)

// Repository defines persistence for auth contexts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuthContext, error)
	Create(ctx context.Context, c *domain.AuthContext) error
	BindSubject(ctx context.Context, id, cupid, guid string) error
	SetRequiresAdditionalSteps(ctx context.Context, id string, v bool) error
	Complete(ctx context.Context, id string, outcome domain.Outcome, at time.Time) error
}
