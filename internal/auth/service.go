package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"userhub/internal/logging"
	"userhub/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrNameRequired       = errors.New("name is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch   = errors.New("password and confirmation do not match")
	ErrInvalidEmailFormat = errors.New("invalid email format")
)

// EmailService defines the interface for email operations
type EmailService interface {
	SendConfirmationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// Service handles the credential lifecycle: signup, sign-in, email
// confirmation and password reset/change.
type Service struct {
	users                    user.Store
	tokenService             TokenService
	emailService             EmailService
	logger                   *logging.Logger
	sessionTokenDuration     time.Duration
	clearRecoverTokenOnReset bool
}

func NewService(
	users user.Store,
	tokenService TokenService,
	emailService EmailService,
	logger *logging.Logger,
	sessionTokenDuration time.Duration,
	clearRecoverTokenOnReset bool,
) *Service {
	return &Service{
		users:                    users,
		tokenService:             tokenService,
		emailService:             emailService,
		logger:                   logger,
		sessionTokenDuration:     sessionTokenDuration,
		clearRecoverTokenOnReset: clearRecoverTokenOnReset,
	}
}

// SignUp creates a regular account and sends the confirmation email.
func (s *Service) SignUp(ctx context.Context, email, name, password, passwordConfirmation string) (*user.User, error) {
	return s.CreateUser(ctx, email, name, password, passwordConfirmation, user.RoleUser)
}

// CreateUser creates an account with the given role. Signup uses RoleUser;
// the admin-create endpoint uses RoleAdmin. The returned user has its
// secrets stripped.
func (s *Service) CreateUser(ctx context.Context, email, name, password, passwordConfirmation string, role user.Role) (*user.User, error) {
	if err := validateSignup(email, name, password, passwordConfirmation); err != nil {
		return nil, err
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, err := HashPassword(password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	confirmationToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation token: %w", err)
	}

	newUser, err := s.users.Create(ctx, &user.User{
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		PasswordSalt:      salt,
		Role:              role,
		Status:            true,
		ConfirmationToken: &confirmationToken,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Send confirmation email in a goroutine (non-blocking). Failure is
	// logged, not surfaced: the account exists either way.
	go func() {
		emailCtx := context.Background()
		if err := s.emailService.SendConfirmationEmail(emailCtx, email, confirmationToken); err != nil {
			s.logger.Warn("failed to send confirmation email", "email", email, "error", err)
		}
	}()

	return stripSecrets(newUser), nil
}

// SignIn authenticates an active user and returns a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	existing, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if !VerifyPassword(password, existing.PasswordSalt, existing.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokenService.CreateToken(existing.ID, s.sessionTokenDuration)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	return token, nil
}

// ConfirmEmail clears the confirmation token of the matching account. The
// transition is terminal: a second call with the same token finds no match
// and reports not-found.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	existing, err := s.users.GetByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to find user by confirmation token: %w", err)
	}

	if err := s.users.ClearConfirmationToken(ctx, existing.ID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Lost the race with a concurrent confirmation.
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to confirm email: %w", err)
	}

	return nil
}

// RequestPasswordReset stores a fresh recovery token on the account and
// emails it. Unknown addresses report not-found.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("failed to generate recover token: %w", err)
	}

	if err := s.users.SetRecoverToken(ctx, existing.ID, token); err != nil {
		return fmt.Errorf("failed to store recover token: %w", err)
	}

	go func() {
		emailCtx := context.Background()
		if err := s.emailService.SendPasswordResetEmail(emailCtx, email, token); err != nil {
			s.logger.Warn("failed to send password reset email", "email", email, "error", err)
		}
	}()

	return nil
}

// ResetPassword sets a new password for the account carrying the recovery
// token. On success the token is invalidated unless the service was
// configured to keep the legacy keep-token behavior.
func (s *Service) ResetPassword(ctx context.Context, recoverToken, newPassword, passwordConfirmation string) error {
	existing, err := s.users.GetByRecoverToken(ctx, recoverToken)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to find user by recover token: %w", err)
	}

	if err := s.ChangePassword(ctx, existing.ID, newPassword, passwordConfirmation); err != nil {
		return err
	}

	if s.clearRecoverTokenOnReset {
		if err := s.users.ClearRecoverToken(ctx, existing.ID); err != nil {
			s.logger.Warn("failed to clear recover token after reset", "user_id", existing.ID, "error", err)
		}
	}

	return nil
}

// ChangePassword rotates the account's salt and hash.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword, passwordConfirmation string) error {
	if newPassword != passwordConfirmation {
		return ErrPasswordMismatch
	}
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	salt, err := GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, err := HashPassword(newPassword, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, salt); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func validateSignup(email, name, password, passwordConfirmation string) error {
	if password != passwordConfirmation {
		return ErrPasswordMismatch
	}
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmailFormat
	}
	if name == "" {
		return ErrNameRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

// stripSecrets zeroes the fields that must never leave the service layer.
func stripSecrets(u *user.User) *user.User {
	clean := *u
	clean.PasswordHash = ""
	clean.PasswordSalt = ""
	clean.ConfirmationToken = nil
	clean.RecoverToken = nil
	return &clean
}
