package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"userhub/internal/access"
	"userhub/internal/logging"
)

var (
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidEmail = errors.New("invalid email format")
)

// UpdateInput carries the optional profile fields of an update. Nil means
// "leave unchanged".
type UpdateInput struct {
	Name   *string
	Email  *string
	Role   *Role
	Status *bool
}

// Service implements user retrieval, update, deletion and search. All
// operations take the caller's principal and enforce the role/ownership
// policy before touching the store.
type Service struct {
	users  Store
	logger *logging.Logger
}

func NewService(users Store, logger *logging.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// Get returns the user with the given id, secrets stripped. Allowed for the
// user themselves and for admins.
func (s *Service) Get(ctx context.Context, principal *access.Principal, id uuid.UUID) (*User, error) {
	if err := access.Authorize(principal, access.ActionSelfOrAdmin, id); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return sanitize(u), nil
}

// Update applies the given profile changes. Name, email and status may be
// changed by the user themselves or an admin; role only by an admin.
func (s *Service) Update(ctx context.Context, principal *access.Principal, id uuid.UUID, input UpdateInput) (*User, error) {
	if err := access.Authorize(principal, access.ActionSelfOrAdmin, id); err != nil {
		return nil, err
	}
	if input.Role != nil && !principal.IsAdmin() {
		return nil, access.ErrForbidden
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if input.Name != nil {
		u.Name = *input.Name
	}
	if input.Email != nil {
		if _, err := mail.ParseAddress(*input.Email); err != nil {
			return nil, ErrInvalidEmail
		}
		u.Email = *input.Email
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, ErrInvalidRole
		}
		u.Role = *input.Role
	}
	if input.Status != nil {
		u.Status = *input.Status
	}

	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("user updated", "user_id", id, "actor_id", principal.ID)

	return sanitize(u), nil
}

// Delete removes the user permanently. Allowed for the user themselves and
// for admins.
func (s *Service) Delete(ctx context.Context, principal *access.Principal, id uuid.UUID) error {
	if err := access.Authorize(principal, access.ActionSelfOrAdmin, id); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("user deleted", "user_id", id, "actor_id", principal.ID)

	return nil
}

// Search runs the filtered, paginated listing. Admin-only.
func (s *Service) Search(ctx context.Context, principal *access.Principal, filter *SearchFilter) ([]Summary, int, error) {
	if err := access.Authorize(principal, access.ActionAdminOnly, uuid.Nil); err != nil {
		return nil, 0, err
	}

	return s.users.Search(ctx, filter)
}

// sanitize returns a copy with the secret fields zeroed.
func sanitize(u *User) *User {
	clean := *u
	clean.PasswordHash = ""
	clean.PasswordSalt = ""
	clean.ConfirmationToken = nil
	clean.RecoverToken = nil
	return &clean
}
