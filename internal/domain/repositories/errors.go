package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound is returned when a session cannot be found or has expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrAuthCodeNotFound is returned when a one-time code is unknown, already
	// redeemed, or expired. The three cases are deliberately indistinguishable.
	ErrAuthCodeNotFound = errors.New("auth code not found")
)
