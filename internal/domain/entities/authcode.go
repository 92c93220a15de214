package entities

import "time"

// AuthCode is a single-use bridge token handed to a native client after a
// successful provider callback. It binds an opaque random code to the
// session established during the callback; redeeming it is destructive.
type AuthCode struct {
	Code      string    `json:"-" db:"code"`
	SessionID string    `json:"session_id" db:"session_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// IsExpired returns true if the code can no longer be redeemed
func (c *AuthCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
