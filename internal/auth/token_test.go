package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef") // 32 bytes

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(testSigningKey)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.CreateToken(userID, 5*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.WithinDuration(t, time.Now().Add(5*time.Hour), claims.ExpiresAt, time.Minute)
}

func TestJWTServiceExpiredToken(t *testing.T) {
	svc, err := NewJWTService(testSigningKey)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTServiceWrongKey(t *testing.T) {
	svc, err := NewJWTService(testSigningKey)
	require.NoError(t, err)
	other, err := NewJWTService([]byte("another-signing-key-entirely----"))
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), time.Hour)
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTServiceTamperedToken(t *testing.T) {
	svc, err := NewJWTService(testSigningKey)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), time.Hour)
	require.NoError(t, err)

	_, err = svc.VerifyToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyToken("not a token at all")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTServiceEmptyKey(t *testing.T) {
	_, err := NewJWTService(nil)
	assert.Error(t, err)
}

func TestPasetoServiceRoundTrip(t *testing.T) {
	svc, err := NewPasetoService(testSigningKey)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.CreateToken(userID, time.Hour)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestPasetoServiceKeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("too short"))
	assert.Error(t, err)
}

func TestPasetoServiceRejectsGarbage(t *testing.T) {
	svc, err := NewPasetoService(testSigningKey)
	require.NoError(t, err)

	_, err = svc.VerifyToken("v4.local.garbage")
	assert.Error(t, err)
}

func TestGenerateOpaqueToken(t *testing.T) {
	token1, err := GenerateOpaqueToken()
	require.NoError(t, err)
	token2, err := GenerateOpaqueToken()
	require.NoError(t, err)

	assert.Len(t, token1, 2*opaqueTokenLen)
	assert.Regexp(t, "^[0-9a-f]+$", token1)
	assert.NotEqual(t, token1, token2)
}
