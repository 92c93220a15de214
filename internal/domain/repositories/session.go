package repositories

import (
	"context"
	"time"

	"github.com/lukekeith/makeready/internal/domain/entities"
)

// SessionRepository defines the interface for server session data access
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// Delete removes a session. Deleting a session that does not exist is
	// not an error; logout must be idempotent.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions whose expiry has passed and returns
	// the number of rows removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
