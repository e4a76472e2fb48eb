package repository

import (
	"context"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/token/domain"
)

// Repository is the token persistence contract. Lookups return (nil, nil)
// when no row matches.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	// GetByHash resolves a presented token value by its sha256 hex hash.
	GetByHash(ctx context.Context, hash string) (*domain.Token, error)
	// ListChildren returns the tokens whose parent_token_id is id.
	ListChildren(ctx context.Context, id string) ([]*domain.Token, error)
	// UpdateStatusIf transitions the token and reports whether a row moved.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, revokedAt *time.Time) (bool, error)
	// RotateActiveByTypes moves the session's ACTIVE rows of the given types
	// to ROTATED. Used when a refresh rotation supersedes the access and ID
	// tokens issued alongside the old refresh.
	RotateActiveByTypes(ctx context.Context, sessionID string, types []domain.Type) (int64, error)
	// RevokeAllBySession revokes every non-terminal token of the session.
	RevokeAllBySession(ctx context.Context, sessionID string, at time.Time) (int64, error)
	// DeleteExpiredBefore removes rows whose exp passed before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
