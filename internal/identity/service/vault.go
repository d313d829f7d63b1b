package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poolworks/identity/internal/identity/notify"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/jwtx"
	"github.com/poolworks/identity/pkg/slogx"
	"golang.org/x/time/rate"
)

const (
	emergencyCodeLength = 16
	emergencySubject    = "emergency-admin"

	// 5 attempts per minute across all callers. The vault is a single shared
	// secret, so the limit is global rather than per-IP.
	emergencyAttemptsPerMinute = 5
)

var (
	ErrEmergencyCodeMismatch = errors.New("emergency code mismatch")
	ErrEmergencyRateLimited  = errors.New("emergency code attempts rate limited")
)

// VaultService holds the single rotating emergency access code. Only a
// digest of the current code is kept; a correct presentation rotates the
// code before anything else happens, so the presented code is dead by the
// time the caller sees a response.
type VaultService struct {
	notifier   notify.Notifier
	signer     *jwtx.Signer
	adminEmail string

	limiter *rate.Limiter

	mu       sync.Mutex
	codeHash string
}

// NewVaultService seeds the vault with the initial code from configuration.
// The plaintext is fingerprinted and discarded.
func NewVaultService(notifier notify.Notifier, signer *jwtx.Signer, adminEmail, initialCode string) *VaultService {
	return &VaultService{
		notifier:   notifier,
		signer:     signer,
		adminEmail: adminEmail,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/emergencyAttemptsPerMinute), emergencyAttemptsPerMinute),
		codeHash:   cryptox.Fingerprint(initialCode),
	}
}

// UseCode exchanges the current emergency code for a short-lived admin token.
// The check-and-rotate is one critical section: two concurrent presentations
// of the same code can never both succeed.
func (s *VaultService) UseCode(ctx context.Context, code string) (string, error) {
	log := slogx.FromContext(ctx)

	// 1. Rate limit before touching the digest. Failed and successful
	// attempts both consume a slot.
	if !s.limiter.Allow() {
		log.Warn("emergency code attempt rate limited")
		return "", ErrEmergencyRateLimited
	}

	newCode, err := cryptox.RandomCode(emergencyCodeLength, cryptox.CodeAlphabet)
	if err != nil {
		return "", err
	}

	// 2. Compare and rotate under the lock.
	s.mu.Lock()
	if !digestEqual(cryptox.Fingerprint(code), s.codeHash) {
		s.mu.Unlock()
		log.Warn("emergency code mismatch")
		return "", ErrEmergencyCodeMismatch
	}
	s.codeHash = cryptox.Fingerprint(newCode)
	s.mu.Unlock()

	// 3. Deliver the successor code. Delivery failure does not undo the
	// rotation; the admin alert below is the operator's cue to check mail.
	if err := s.notifier.Send(ctx, emergencyCodeEmail(s.adminEmail, newCode)); err != nil {
		log.Error("failed to deliver rotated emergency code", slog.Any("error", err))
	}

	token, err := s.signer.Mint(emergencySubject, jwtx.DefaultAdminTokenTTL, []string{"emergency_code"})
	if err != nil {
		log.Error("failed to mint emergency admin token", slog.Any("error", err))
		return "", err
	}

	log.Warn("emergency access code used, code rotated")
	return token, nil
}

// Rotate replaces the current code without requiring the old one. For
// operator use when the code may have leaked.
func (s *VaultService) Rotate(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	newCode, err := cryptox.RandomCode(emergencyCodeLength, cryptox.CodeAlphabet)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.codeHash = cryptox.Fingerprint(newCode)
	s.mu.Unlock()

	if err := s.notifier.Send(ctx, emergencyCodeEmail(s.adminEmail, newCode)); err != nil {
		log.Error("failed to deliver rotated emergency code", slog.Any("error", err))
	}

	log.Info("emergency access code rotated by operator")
	return nil
}
