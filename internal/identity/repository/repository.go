package repository

import (
	"context"

	"github.com/majafary/ciam-claude-sub001/internal/identity/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByCupid(ctx context.Context, cupid string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, cupid string, status domain.UserStatus) error
}
