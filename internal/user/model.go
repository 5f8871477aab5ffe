package user

import (
	"time"

	"github.com/google/uuid"

	"userhub/internal/access"
)

// Role values come from the access package; aliased here so domain code and
// repositories keep reading naturally.
type Role = access.Role

const (
	RoleUser  = access.RoleUser
	RoleAdmin = access.RoleAdmin
)

// User is the domain model for an account. PasswordHash, PasswordSalt and the
// two opaque tokens never leave the service layer: they are excluded from
// JSON and stripped from API responses.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	PasswordSalt      string     `json:"-"`
	Role              Role       `json:"role"`
	Status            bool       `json:"status"`
	ConfirmationToken *string    `json:"-"`
	RecoverToken      *string    `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Confirmed reports whether the account's email has been confirmed.
func (u *User) Confirmed() bool {
	return u.ConfirmationToken == nil
}

// Summary is the projection returned by search: no secrets, no timestamps.
type Summary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	Status bool      `json:"status"`
}
