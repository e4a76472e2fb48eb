package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
)

// Repository is the auth transaction persistence contract. Implementations
// return (nil, nil) for lookups that match no row.
type Repository interface {
	// Create persists a new transaction row.
	Create(ctx context.Context, t *domain.AuthTransaction) error
	// GetByID returns the transaction for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.AuthTransaction, error)
	// UpdateStatusIf moves the transaction from one status to another and
	// stores the payload snapshot. It reports whether a row transitioned,
	// which is false when the transaction was already in another state.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, payload domain.Payload) (bool, error)
	// ExpireAllPending marks every PENDING transaction of the context
	// EXPIRED and returns how many rows changed.
	ExpireAllPending(ctx context.Context, contextID string) (int, error)
	// MaxSequence returns the highest sequence number used in the context,
	// or 0 when the context has no transactions yet.
	MaxSequence(ctx context.Context, contextID string) (int, error)
	// DeleteExpiredBefore removes terminal transaction rows older than the
	// cutoff. Used by the retention sweep.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
