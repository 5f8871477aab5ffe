package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// GenerateSalt returns a fresh random salt, base64-encoded for storage in
// the password_salt column. Every signup and password change gets a new one.
func GenerateSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(salt), nil
}

// HashPassword derives the argon2id hash of the password under the given
// stored salt.
func HashPassword(password, encodedSalt string) (string, error) {
	salt, err := base64.RawStdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	return base64.RawStdEncoding.EncodeToString(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash+salt.
// The comparison is constant-time.
func VerifyPassword(password, encodedSalt, encodedHash string) bool {
	storedHash, err := base64.RawStdEncoding.DecodeString(encodedHash)
	if err != nil {
		return false
	}

	computed, err := HashPassword(password, encodedSalt)
	if err != nil {
		return false
	}
	computedHash, err := base64.RawStdEncoding.DecodeString(computed)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(storedHash, computedHash) == 1
}
