package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"userhub/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Store is the persistence boundary the services depend on. *Repository is
// the Postgres implementation; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetByConfirmationToken(ctx context.Context, token string) (*User, error)
	GetByRecoverToken(ctx context.Context, token string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt string) error
	ClearConfirmationToken(ctx context.Context, id uuid.UUID) error
	SetRecoverToken(ctx context.Context, id uuid.UUID, token string) error
	ClearRecoverToken(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, filter *SearchFilter) ([]Summary, int, error)
}

// Repository handles user persistence in Postgres via bun.
type Repository struct {
	db *bun.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns it with the store-assigned id and
// timestamps filled in.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	dbUser := &database.User{
		Name:              u.Name,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		PasswordSalt:      u.PasswordSalt,
		Role:              string(u.Role),
		Status:            u.Status,
		ConfirmationToken: u.ConfirmationToken,
		RecoverToken:      u.RecoverToken,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email regardless of status. The comparison
// is case-insensitive, matching the unique index on LOWER(email).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getByEmail(ctx, email, false)
}

// GetActiveByEmail retrieves an active user by email. Sign-in uses this so
// deactivated accounts cannot authenticate.
func (r *Repository) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return r.getByEmail(ctx, email, true)
}

func (r *Repository) getByEmail(ctx context.Context, email string, activeOnly bool) (*User, error) {
	dbUser := new(database.User)
	q := r.db.NewSelect().
		Model(dbUser).
		Where("LOWER(email) = LOWER(?)", email)
	if activeOnly {
		q = q.Where("status = ?", true)
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByConfirmationToken finds the user carrying the given confirmation
// token. Confirmed accounts have a null token and never match.
func (r *Repository) GetByConfirmationToken(ctx context.Context, token string) (*User, error) {
	return r.getByToken(ctx, "confirmation_token", token)
}

// GetByRecoverToken finds the user carrying the given recovery token.
func (r *Repository) GetByRecoverToken(ctx context.Context, token string) (*User, error) {
	return r.getByToken(ctx, "recover_token", token)
}

func (r *Repository) getByToken(ctx context.Context, column, token string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("? = ?", bun.Ident(column), token).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}

	return mapDBUserToModel(dbUser), nil
}

// Update persists the mutable profile fields (name, email, role, status).
func (r *Repository) Update(ctx context.Context, u *User) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("name = ?", u.Name).
		Set("email = ?", u.Email).
		Set("role = ?", string(u.Role)).
		Set("status = ?", u.Status).
		Set("updated_at = NOW()").
		Where("id = ?", u.ID).
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return requireRow(result, "failed to update user")
}

// UpdatePassword rotates the stored hash and salt.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", hash).
		Set("password_salt = ?", salt).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return requireRow(result, "failed to update password")
}

// ClearConfirmationToken marks the account's email as confirmed. The token
// predicate is in the WHERE clause so the transition is single-shot even
// under concurrent confirmation attempts.
func (r *Repository) ClearConfirmationToken(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("confirmation_token = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("confirmation_token IS NOT NULL").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to clear confirmation token: %w", err)
	}

	return requireRow(result, "failed to clear confirmation token")
}

// SetRecoverToken stores a fresh recovery token on the user row.
func (r *Repository) SetRecoverToken(ctx context.Context, id uuid.UUID, token string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("recover_token = ?", token).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to set recover token: %w", err)
	}

	return requireRow(result, "failed to set recover token")
}

// ClearRecoverToken invalidates the user's recovery token.
func (r *Repository) ClearRecoverToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("recover_token = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to clear recover token: %w", err)
	}

	return nil
}

// Delete removes the user row. Hard delete, no tombstone.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireRow(result, "failed to delete user")
}

// Search runs the filtered, paginated, ordered query and returns the page of
// summaries plus the total match count ignoring pagination.
func (r *Repository) Search(ctx context.Context, filter *SearchFilter) ([]Summary, int, error) {
	filter.Normalize()

	var rows []database.User
	q := r.db.NewSelect().
		Model(&rows).
		Column("id", "name", "email", "role", "status").
		Where("status = ?", *filter.Status)

	if filter.Email != "" {
		q = q.Where("email ILIKE ?", "%"+filter.Email+"%")
	}
	if filter.Name != "" {
		q = q.Where("name ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.Role != "" {
		q = q.Where("role = ?", string(filter.Role))
	}

	for _, s := range filter.Sort {
		q = q.OrderExpr("? ?", bun.Ident(s.Field), bun.Safe(s.Direction))
	}

	total, err := q.Offset(filter.Offset()).Limit(filter.Limit).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search users: %w", err)
	}

	summaries := make([]Summary, len(rows))
	for i, row := range rows {
		summaries[i] = Summary{
			ID:     row.ID,
			Name:   row.Name,
			Email:  row.Email,
			Role:   Role(row.Role),
			Status: row.Status,
		}
	}

	return summaries, total, nil
}

func requireRow(result sql.Result, action string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// mapDBUserToModel converts the row model to the domain model.
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                dbu.ID,
		Name:              dbu.Name,
		Email:             dbu.Email,
		PasswordHash:      dbu.PasswordHash,
		PasswordSalt:      dbu.PasswordSalt,
		Role:              Role(dbu.Role),
		Status:            dbu.Status,
		ConfirmationToken: dbu.ConfirmationToken,
		RecoverToken:      dbu.RecoverToken,
		CreatedAt:         dbu.CreatedAt,
		UpdatedAt:         dbu.UpdatedAt,
	}
}
