package entities

import "time"

// User represents a MakeReady account provisioned from a Google identity
type User struct {
	ID        string    `json:"id" db:"id"`
	GoogleID  string    `json:"-" db:"google_id"` // provider subject, unique
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Picture   *string   `json:"picture,omitempty" db:"picture"` // profile picture URL from the provider
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Refresh updates the mutable profile fields from a fresh provider assertion.
// ID, GoogleID and CreatedAt never change after provisioning.
func (u *User) Refresh(email, name string, picture *string) {
	u.Email = email
	u.Name = name
	u.Picture = picture
}
