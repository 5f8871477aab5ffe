package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the bun row model for the users table. Domain code works with
// user.User; only repositories touch this type.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name              string    `bun:"name,notnull"`
	Email             string    `bun:"email,notnull"`
	PasswordHash      string    `bun:"password_hash,notnull"`
	PasswordSalt      string    `bun:"password_salt,notnull"`
	Role              string    `bun:"role,notnull,default:'USER'"`
	Status            bool      `bun:"status,notnull,default:true"`
	ConfirmationToken *string   `bun:"confirmation_token"`
	RecoverToken      *string   `bun:"recover_token"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
