package repositories

import (
	"context"

	"github.com/lukekeith/makeready/internal/domain/entities"
)

// UserRepository defines the interface for account data access
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*entities.User, error)
	Update(ctx context.Context, user *entities.User) error
}
