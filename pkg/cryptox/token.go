package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy.
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy.
	TokenSize256 = 32
)

// RandomID returns a cryptographically secure random identifier of byteLen
// bytes, hex encoded. Used for recovery request IDs and trusted device IDs,
// where 16 bytes (128 bits) makes collisions implausible over the system's
// lifetime.
func RandomID(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("id length must be positive, got %d", byteLen)
	}

	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random id: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// RandomToken creates a cryptographically secure random token of the
// specified byte length, base64url encoded (URL-safe, no padding). Used for
// continuation and completion tokens chained between recovery steps.
func RandomToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns a deterministic SHA-256 digest of a secret,
// base64url encoded. Every stored comparison value (email codes,
// continuation tokens, backup codes, the emergency access code) is kept as a
// fingerprint so plaintext secrets are never persisted.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
