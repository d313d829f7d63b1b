package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/internal/identity/notify"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/slogx"
)

const (
	defaultRecoveryTTL  = 30 * time.Minute
	recoveryCodeLength  = 6
	recoveryIDBytes     = cryptox.TokenSize128
	defaultMaxAttempts  = 5
	recoverySweeperName = "recovery-requests"
)

var (
	ErrRecoveryNotFound         = errors.New("recovery request not found")
	ErrRecoveryExpired          = errors.New("recovery request expired")
	ErrRecoveryAlreadyUsed      = errors.New("recovery request already used")
	ErrRecoveryNotReady         = errors.New("recovery request has not passed password verification")
	ErrRecoveryCodeMismatch     = errors.New("recovery email code mismatch")
	ErrRecoveryTokenMismatch    = errors.New("recovery continuation token mismatch")
	ErrRecoveryPasswordMismatch = errors.New("recovery password mismatch")
	ErrTooManyAttempts          = errors.New("too many failed attempts")
)

// RecoveryConfig tunes the recovery flow. Zero values select the defaults
// (30 minute TTL, 5 attempts).
type RecoveryConfig struct {
	AdminEmail  string
	RequestTTL  time.Duration
	MaxAttempts int
}

// RecoveryService runs the 4-step 2FA-loss recovery protocol. Each step
// returns a single-use secret the next step must present, so intercepting one
// artifact (say, a request ID out of a referrer header) does not let an
// attacker skip ahead.
//
// Requests live only in this map; the sweeper purges them after expiry, and
// a process restart abandons every flow in progress.
type RecoveryService struct {
	store     store.Store
	notifier  notify.Notifier
	twoFactor *TwoFactorService

	adminEmail  string
	requestTTL  time.Duration
	maxAttempts int

	mu       sync.Mutex
	requests map[string]*domain.RecoveryRequest
}

func NewRecoveryService(st store.Store, notifier notify.Notifier, twoFactor *TwoFactorService, cfg RecoveryConfig) *RecoveryService {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = defaultRecoveryTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &RecoveryService{
		store:       st,
		notifier:    notifier,
		twoFactor:   twoFactor,
		adminEmail:  cfg.AdminEmail,
		requestTTL:  cfg.RequestTTL,
		maxAttempts: cfg.MaxAttempts,
		requests:    make(map[string]*domain.RecoveryRequest),
	}
}

// Initiate starts a recovery flow for the account with the given email.
// It emails a 6-character code to the user and alerts the administrator.
// The returned request ID is step 2's handle.
func (s *RecoveryService) Initiate(ctx context.Context, email string) (string, error) {
	log := slogx.FromContext(ctx)

	// 1. The account must exist. The caller still gets the uniform message.
	user, err := s.store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("recovery initiated for unknown email")
			return "", ErrAccountNotFound
		}
		log.Error("failed to fetch user for recovery", slog.Any("error", err))
		return "", err
	}

	// 2. Mint the request ID and email code.
	requestID, err := cryptox.RandomID(recoveryIDBytes)
	if err != nil {
		return "", err
	}
	code, err := cryptox.RandomCode(recoveryCodeLength, cryptox.CodeAlphabet)
	if err != nil {
		return "", err
	}

	now := time.Now()
	req := &domain.RecoveryRequest{
		ID:                   requestID,
		UserID:               user.ID,
		Email:                user.Email,
		EmailCodeHash:        cryptox.Fingerprint(code),
		PasswordHashSnapshot: user.PasswordHash,
		ExpiresAt:            now.Add(s.requestTTL),
		CreatedAt:            now,
	}

	s.mu.Lock()
	s.requests[requestID] = req
	s.mu.Unlock()

	// 3. Notify after the state is committed; failures never unwind it.
	minutes := int(s.requestTTL.Minutes())
	if err := s.notifier.Send(ctx, recoveryCodeEmail(user.Email, code, minutes)); err != nil {
		log.Error("failed to send recovery code email", slog.Any("error", err))
	}
	if s.adminEmail != "" {
		if err := s.notifier.Send(ctx, recoveryAdminAlert(s.adminEmail, user.Email, requestID)); err != nil {
			log.Error("failed to send recovery admin alert", slog.Any("error", err))
		}
	}

	log.Info("recovery initiated",
		slog.String("user_id", user.ID),
		slog.String("request_id", requestID),
	)
	return requestID, nil
}

// VerifyEmailCode is step 2. On a correct code it rotates the stored digest
// to a fresh continuation token and returns that token; the email code can
// never be replayed because its digest is gone.
func (s *RecoveryService) VerifyEmailCode(ctx context.Context, requestID, code string) (string, error) {
	log := slogx.FromContext(ctx)

	token, err := cryptox.RandomToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.lookupLocked(requestID)
	if err != nil {
		log.Warn("email code verification rejected",
			slog.String("request_id", requestID),
			slog.Any("reason", err),
		)
		return "", err
	}

	if req.EmailCodeHash == "" || !digestEqual(cryptox.Fingerprint(code), req.EmailCodeHash) {
		s.recordFailureLocked(req)
		log.Warn("email code mismatch",
			slog.String("request_id", requestID),
			slog.Int("attempts", req.Attempts),
		)
		return "", ErrRecoveryCodeMismatch
	}

	req.EmailCodeHash = ""
	req.ContinuationHash = cryptox.Fingerprint(token)
	req.Attempts = 0

	log.Info("recovery email code verified", slog.String("request_id", requestID))
	return token, nil
}

// VerifyOriginalPassword is step 3. The caller proves possession of the
// step-2 continuation token and knowledge of the account's pre-loss
// password. On success the request is marked used and a completion token is
// returned; the token itself is advisory, step 4's real gate is the used
// flag.
func (s *RecoveryService) VerifyOriginalPassword(ctx context.Context, requestID, continuationToken, password string) (string, error) {
	log := slogx.FromContext(ctx)

	tokenHash := cryptox.Fingerprint(continuationToken)

	// Phase 1: validate the chain under the lock and snapshot what the slow
	// argon2 comparison needs.
	s.mu.Lock()
	req, err := s.lookupLocked(requestID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("password verification rejected",
			slog.String("request_id", requestID),
			slog.Any("reason", err),
		)
		return "", err
	}

	if req.ContinuationHash == "" || !digestEqual(tokenHash, req.ContinuationHash) {
		s.recordFailureLocked(req)
		s.mu.Unlock()
		log.Warn("continuation token mismatch", slog.String("request_id", requestID))
		return "", ErrRecoveryTokenMismatch
	}

	snapshot := req.PasswordHashSnapshot
	s.mu.Unlock()

	// Phase 2: argon2 outside the lock; it is far too slow to serialize
	// every recovery behind.
	if err := cryptox.VerifyPassword(password, snapshot); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			s.mu.Lock()
			if r, ok := s.requests[requestID]; ok {
				s.recordFailureLocked(r)
			}
			s.mu.Unlock()
			log.Warn("recovery password mismatch", slog.String("request_id", requestID))
			return "", ErrRecoveryPasswordMismatch
		}
		log.Error("stored password hash unreadable", slog.Any("error", err))
		return "", err
	}

	completeToken, err := cryptox.RandomToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	// Phase 3: re-validate before committing; a concurrent call, sweep or
	// expiry may have advanced the request while the lock was released.
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err = s.lookupLocked(requestID)
	if err != nil {
		return "", err
	}
	if req.ContinuationHash == "" || !digestEqual(tokenHash, req.ContinuationHash) {
		return "", ErrRecoveryTokenMismatch
	}

	req.ContinuationHash = ""
	req.Used = true

	log.Info("recovery password verified", slog.String("request_id", requestID))
	return completeToken, nil
}

// Complete is step 4. It requires a request that passed step 3 (used=true)
// and has not expired, deletes it, and issues fresh TOTP enrollment material.
// The completion token is accepted but not checked against stored state; the
// used flag is the gate.
func (s *RecoveryService) Complete(ctx context.Context, requestID, completeToken string) (domain.TOTPEnrollment, error) {
	log := slogx.FromContext(ctx)
	_ = completeToken

	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		log.Warn("completion rejected, unknown request", slog.String("request_id", requestID))
		return domain.TOTPEnrollment{}, ErrRecoveryNotFound
	}
	if req.Expired(time.Now()) {
		s.mu.Unlock()
		log.Warn("completion rejected, request expired", slog.String("request_id", requestID))
		return domain.TOTPEnrollment{}, ErrRecoveryExpired
	}
	if !req.Used {
		s.mu.Unlock()
		log.Warn("completion rejected before password verification", slog.String("request_id", requestID))
		return domain.TOTPEnrollment{}, ErrRecoveryNotReady
	}

	delete(s.requests, requestID)
	userID, email := req.UserID, req.Email
	s.mu.Unlock()

	enrollment, err := s.twoFactor.ResetEnrollment(ctx, userID, email)
	if err != nil {
		log.Error("failed to reset 2FA enrollment after recovery",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return domain.TOTPEnrollment{}, err
	}

	log.Info("recovery completed",
		slog.String("user_id", userID),
		slog.String("request_id", requestID),
	)
	return enrollment, nil
}

// Name identifies this sweeper in housekeeping logs.
func (s *RecoveryService) Name() string { return recoverySweeperName }

// SweepExpired drops requests past their deadline and returns how many were
// removed. Runs under the same lock as the request path, so a sweep can
// never race an in-flight verification.
func (s *RecoveryService) SweepExpired(ctx context.Context) int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, req := range s.requests {
		if req.Expired(now) {
			delete(s.requests, id)
			removed++
		}
	}
	return removed
}

// lookupLocked applies the preconditions shared by steps 2 and 3. Caller
// holds the lock.
func (s *RecoveryService) lookupLocked(requestID string) (*domain.RecoveryRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrRecoveryNotFound
	}
	if req.Expired(time.Now()) {
		return nil, ErrRecoveryExpired
	}
	if req.Used {
		return nil, ErrRecoveryAlreadyUsed
	}
	if req.Attempts >= s.maxAttempts {
		return nil, ErrTooManyAttempts
	}
	return req, nil
}

// recordFailureLocked bumps the attempt counter. Caller holds the lock.
func (s *RecoveryService) recordFailureLocked(req *domain.RecoveryRequest) {
	req.Attempts++
}

func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// PendingCount reports how many recovery requests are currently held.
func (s *RecoveryService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
