package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// opaqueTokenLen is the raw byte length of confirmation and recovery tokens;
// hex encoding doubles it on the wire (64 characters).
const opaqueTokenLen = 32

// GenerateOpaqueToken creates a cryptographically secure random token for
// email confirmation and password recovery. These are single-use values
// stored inline on the user record and compared by equality.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
