package repositories

import (
	"context"
	"time"

	"github.com/lukekeith/makeready/internal/domain/entities"
)

// AuthCodeStore is the one-time code store bridging the browser OAuth flow
// to native clients. Implementations must make Redeem atomic: under
// concurrent redemption of the same code exactly one caller receives the
// entry and all others get ErrAuthCodeNotFound.
type AuthCodeStore interface {
	// Issue generates a fresh random opaque code bound to the given session
	// and user, valid for ttl.
	Issue(ctx context.Context, sessionID, userID string, ttl time.Duration) (string, error)

	// Redeem removes and returns the entry for code. An unknown, consumed,
	// or expired code yields ErrAuthCodeNotFound; expired entries are
	// removed on the way out, never resurrected.
	Redeem(ctx context.Context, code string) (*entities.AuthCode, error)

	// Close releases any background resources held by the store
	Close() error
}
