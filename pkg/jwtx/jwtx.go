// Package jwtx mints and verifies the short-lived Ed25519-signed access
// tokens handed out by the emergency access vault. Keys are ephemeral: they
// are generated at process start, which also means every outstanding
// emergency token dies with the process. That is the intended failure mode
// for a bypass credential.
package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAdminTokenTTL bounds how long an emergency bypass token stays valid.
const DefaultAdminTokenTTL = 15 * time.Minute

var (
	ErrInvalidToken = errors.New("jwtx: invalid token")
	ErrIssuer       = errors.New("jwtx: unexpected issuer")
)

// Claims are the token claims used for emergency admin access.
type Claims struct {
	jwt.RegisteredClaims

	// AMR records how the holder authenticated, e.g. ["emergency_code"].
	AMR []string `json:"amr,omitempty"`
}

// Signer signs and verifies tokens with a process-local Ed25519 keypair.
type Signer struct {
	kid    string
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey
	issuer string
}

// NewEphemeralSigner generates a fresh Ed25519 keypair for this process.
func NewEphemeralSigner(issuer string) (*Signer, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate ed25519 key: %w", err)
	}

	return &Signer{
		kid:    base64.RawURLEncoding.EncodeToString(pub[:8]),
		key:    key,
		pub:    pub,
		issuer: issuer,
	}, nil
}

// KID returns the key identifier stamped into token headers.
func (s *Signer) KID() string { return s.kid }

// Mint signs a token for subject with the given lifetime.
func (s *Signer) Mint(subject string, ttl time.Duration, amr []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		AMR: amr,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// Verify parses a token, checks the signature and registered claims, and
// enforces the expected issuer.
func (s *Signer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
		}
		return s.pub, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, ErrIssuer
	}

	return claims, nil
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
