package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Character sets for human-enterable secrets.
const (
	// CodeAlphabet is uppercase letters plus digits, for codes a user reads
	// out of an email and types back in.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DigitAlphabet is used for username padding.
	DigitAlphabet = "0123456789"

	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*-_"
)

// DefaultPasswordLength is the length of generated initial passwords.
const DefaultPasswordLength = 12

// RandomCode draws length characters from alphabet, each selected uniformly
// via crypto/rand. rand.Int avoids the modulo bias a naive byte%len approach
// would introduce.
func RandomCode(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	if alphabet == "" {
		alphabet = CodeAlphabet
	}

	max := big.NewInt(int64(len(alphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// RandomPassword generates an initial account password from a mixed-case
// alphanumeric-plus-symbol set. Pass length <= 0 for the default.
func RandomPassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	return RandomCode(length, passwordAlphabet)
}
