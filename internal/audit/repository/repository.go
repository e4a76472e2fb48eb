package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	// ListByCupid returns the user's events, newest first.
	ListByCupid(ctx context.Context, cupid string, limit, offset int32) ([]*domain.AuditLog, error)
	// DeleteBefore removes events older than cutoff. Used by the retention sweep.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
