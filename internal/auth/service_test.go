package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userhub/internal/logging"
	"userhub/internal/user"
)

// fakeStore is an in-memory user.Store for service tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[uuid.UUID]*user.User{}}
}

func (s *fakeStore) Create(_ context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, user.ErrDuplicateEmail
		}
	}
	stored := *u
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.users[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return s.findByEmail(email, false)
}

func (s *fakeStore) GetActiveByEmail(_ context.Context, email string) (*user.User, error) {
	return s.findByEmail(email, true)
}

func (s *fakeStore) findByEmail(email string, activeOnly bool) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) && (!activeOnly || u.Status) {
			out := *u
			return &out, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *fakeStore) GetByConfirmationToken(_ context.Context, token string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ConfirmationToken != nil && *u.ConfirmationToken == token {
			out := *u
			return &out, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *fakeStore) GetByRecoverToken(_ context.Context, token string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.RecoverToken != nil && *u.RecoverToken == token {
			out := *u
			return &out, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *fakeStore) Update(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return user.ErrNotFound
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.Role = u.Role
	existing.Status = u.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) UpdatePassword(_ context.Context, id uuid.UUID, hash, salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordSalt = salt
	return nil
}

func (s *fakeStore) ClearConfirmationToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.ConfirmationToken == nil {
		return user.ErrNotFound
	}
	u.ConfirmationToken = nil
	return nil
}

func (s *fakeStore) SetRecoverToken(_ context.Context, id uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.RecoverToken = &token
	return nil
}

func (s *fakeStore) ClearRecoverToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.RecoverToken = nil
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *fakeStore) Search(_ context.Context, filter *user.SearchFilter) ([]user.Summary, int, error) {
	filter.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []user.Summary
	for _, u := range s.users {
		if u.Status == *filter.Status {
			summaries = append(summaries, user.Summary{
				ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Status: u.Status,
			})
		}
	}
	return summaries, len(summaries), nil
}

var _ user.Store = (*fakeStore)(nil)

type sentEmail struct {
	to    string
	token string
}

// fakeEmail records deliveries on channels so tests can wait for the async
// send without sleeping.
type fakeEmail struct {
	confirmations chan sentEmail
	resets        chan sentEmail
}

func newFakeEmail() *fakeEmail {
	return &fakeEmail{
		confirmations: make(chan sentEmail, 8),
		resets:        make(chan sentEmail, 8),
	}
}

func (e *fakeEmail) SendConfirmationEmail(_ context.Context, toEmail, token string) error {
	e.confirmations <- sentEmail{to: toEmail, token: token}
	return nil
}

func (e *fakeEmail) SendPasswordResetEmail(_ context.Context, toEmail, token string) error {
	e.resets <- sentEmail{to: toEmail, token: token}
	return nil
}

func awaitEmail(t *testing.T, ch chan sentEmail) sentEmail {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email delivery")
		return sentEmail{}
	}
}

func newTestService(t *testing.T, clearRecoverToken bool) (*Service, *fakeStore, *fakeEmail) {
	t.Helper()
	store := newFakeStore()
	email := newFakeEmail()
	tokens, err := NewJWTService(testSigningKey)
	require.NoError(t, err)
	svc := NewService(store, tokens, email, logging.NewLogger(true), 5*time.Hour, clearRecoverToken)
	return svc, store, email
}

func mustSignUp(t *testing.T, svc *Service, email, password string) *user.User {
	t.Helper()
	u, err := svc.SignUp(context.Background(), email, "Test User", password, password)
	require.NoError(t, err)
	return u
}

func TestSignUp(t *testing.T) {
	svc, store, email := newTestService(t, true)

	created, err := svc.SignUp(context.Background(), "anna@example.com", "Anna", "sup3rsecret", "sup3rsecret")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "anna@example.com", created.Email)
	assert.Equal(t, user.RoleUser, created.Role)
	assert.True(t, created.Status)
	assert.False(t, created.Confirmed())

	// Secrets never leave the service layer.
	assert.Empty(t, created.PasswordHash)
	assert.Empty(t, created.PasswordSalt)
	assert.Nil(t, created.ConfirmationToken)

	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "sup3rsecret", stored.PasswordHash)
	assert.True(t, VerifyPassword("sup3rsecret", stored.PasswordSalt, stored.PasswordHash))
	require.NotNil(t, stored.ConfirmationToken)
	assert.Len(t, *stored.ConfirmationToken, 64)

	msg := awaitEmail(t, email.confirmations)
	assert.Equal(t, "anna@example.com", msg.to)
	assert.Equal(t, *stored.ConfirmationToken, msg.token)
}

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name         string
		email        string
		userName     string
		password     string
		confirmation string
		wantErr      error
	}{
		{"mismatch", "a@example.com", "A", "password123", "password124", ErrPasswordMismatch},
		{"empty email", "", "A", "password123", "password123", ErrEmailRequired},
		{"bad email", "not-an-email", "A", "password123", "password123", ErrInvalidEmailFormat},
		{"empty name", "a@example.com", "", "password123", "password123", ErrNameRequired},
		{"short password", "a@example.com", "A", "short", "short", ErrPasswordTooShort},
		{"empty password", "a@example.com", "A", "", "", ErrPasswordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t, true)
			_, err := svc.SignUp(context.Background(), tt.email, tt.userName, tt.password, tt.confirmation)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.users, "nothing should be persisted on validation failure")
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	mustSignUp(t, svc, "dup@example.com", "password123")

	_, err := svc.SignUp(context.Background(), "DUP@example.com", "Other", "password123", "password123")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestCreateUserAdminRole(t *testing.T) {
	svc, store, _ := newTestService(t, true)

	created, err := svc.CreateUser(context.Background(), "root@example.com", "Root", "password123", "password123", user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, created.Role)

	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, stored.Role)
}

func TestSignIn(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "bob@example.com", "password123")

	token, err := svc.SignIn(context.Background(), "bob@example.com", "password123")
	require.NoError(t, err)

	verifier, err := NewJWTService(testSigningKey)
	require.NoError(t, err)
	claims, err := verifier.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), claims.UserID)
}

func TestSignInRejections(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "carol@example.com", "password123")

	_, err := svc.SignIn(context.Background(), "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Deactivated accounts cannot authenticate even with the right password.
	store.mu.Lock()
	store.users[created.ID].Status = false
	store.mu.Unlock()

	_, err = svc.SignIn(context.Background(), "carol@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConfirmEmail(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "dave@example.com", "password123")

	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	token := *stored.ConfirmationToken

	require.NoError(t, svc.ConfirmEmail(context.Background(), token))

	stored, err = store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ConfirmationToken)
	assert.True(t, stored.Confirmed())

	// The token is single-use.
	err = svc.ConfirmEmail(context.Background(), token)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestConfirmEmailUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	err := svc.ConfirmEmail(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestRequestPasswordReset(t *testing.T) {
	svc, store, email := newTestService(t, true)
	created := mustSignUp(t, svc, "erin@example.com", "password123")
	awaitEmail(t, email.confirmations)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "erin@example.com"))

	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RecoverToken)
	assert.Len(t, *stored.RecoverToken, 64)

	msg := awaitEmail(t, email.resets)
	assert.Equal(t, "erin@example.com", msg.to)
	assert.Equal(t, *stored.RecoverToken, msg.token)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestResetPassword(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "frank@example.com", "password123")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "frank@example.com"))
	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	token := *stored.RecoverToken

	require.NoError(t, svc.ResetPassword(context.Background(), token, "newpassword1", "newpassword1"))

	stored, err = store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, VerifyPassword("password123", stored.PasswordSalt, stored.PasswordHash))
	assert.True(t, VerifyPassword("newpassword1", stored.PasswordSalt, stored.PasswordHash))
	assert.Nil(t, stored.RecoverToken, "token should be invalidated after use")

	err = svc.ResetPassword(context.Background(), token, "anotherpass1", "anotherpass1")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestResetPasswordKeepsTokenWhenConfigured(t *testing.T) {
	svc, store, _ := newTestService(t, false)
	created := mustSignUp(t, svc, "grace@example.com", "password123")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "grace@example.com"))
	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	token := *stored.RecoverToken

	require.NoError(t, svc.ResetPassword(context.Background(), token, "newpassword1", "newpassword1"))

	stored, err = store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RecoverToken)
	assert.Equal(t, token, *stored.RecoverToken)
}

func TestResetPasswordMismatchLeavesHashUnchanged(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "heidi@example.com", "password123")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "heidi@example.com"))
	before, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), *before.RecoverToken, "newpassword1", "different1")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	after, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.NotNil(t, after.RecoverToken)
}

func TestResetPasswordUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	err := svc.ResetPassword(context.Background(), "bogus", "newpassword1", "newpassword1")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "ivan@example.com", "password123")

	before, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), created.ID, "freshpass99", "freshpass99"))

	after, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordSalt, after.PasswordSalt, "salt should rotate with the password")
	assert.True(t, VerifyPassword("freshpass99", after.PasswordSalt, after.PasswordHash))
}

func TestChangePasswordValidation(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	created := mustSignUp(t, svc, "judy@example.com", "password123")

	err := svc.ChangePassword(context.Background(), created.ID, "newpassword1", "other")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	err = svc.ChangePassword(context.Background(), created.ID, "", "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	err = svc.ChangePassword(context.Background(), created.ID, "short", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	err = svc.ChangePassword(context.Background(), uuid.New(), "newpassword1", "newpassword1")
	assert.ErrorIs(t, err, user.ErrNotFound)
}
