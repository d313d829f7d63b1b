package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/internal/identity/notify"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/idx"
	"github.com/poolworks/identity/pkg/slogx"
)

const (
	minUsernameLength    = 3
	usernameRetryBudget  = 5
	usernameSuffixDigits = 2
)

var (
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrAccountExists          = errors.New("an account with this email already exists")
	ErrDuplicatePending       = errors.New("a pending registration for this email already exists")
	ErrRegistrationNotFound   = errors.New("registration request not found")
	ErrRegistrationNotPending = errors.New("registration request already decided")
	ErrUsernameTaken          = errors.New("could not find a free username")
)

// RegistrationService owns registration-request intake, admin decisions and
// credential issuance. Requests live in memory; terminal (approved/rejected)
// records are retained for audit and never swept.
type RegistrationService struct {
	store     store.Store
	notifier  notify.Notifier
	twoFactor *TwoFactorService

	adminEmail string

	mu       sync.Mutex
	requests map[string]*domain.PendingRegistration
}

func NewRegistrationService(st store.Store, notifier notify.Notifier, twoFactor *TwoFactorService, adminEmail string) *RegistrationService {
	return &RegistrationService{
		store:      st,
		notifier:   notifier,
		twoFactor:  twoFactor,
		adminEmail: adminEmail,
		requests:   make(map[string]*domain.PendingRegistration),
	}
}

// Submit records a new registration request, notifies the administrator and
// confirms receipt to the requester. At most one pending request may exist
// per email; the duplicate check runs under the map lock.
func (s *RegistrationService) Submit(ctx context.Context, email, fullName, reason, ip, extra string) (string, error) {
	log := slogx.FromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}

	// 1. An existing account wins over any request.
	_, err := s.store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		log.Warn("registration submitted for existing account")
		return "", ErrAccountExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check account existence", slog.Any("error", err))
		return "", err
	}

	req := &domain.PendingRegistration{
		ID:             idx.New().String(),
		Email:          email,
		FullName:       fullName,
		Reason:         reason,
		IPAddress:      ip,
		AdditionalInfo: extra,
		Status:         domain.RegistrationPending,
		RequestDate:    time.Now(),
	}

	// 2. Re-check for a pending duplicate under the lock before inserting.
	s.mu.Lock()
	for _, existing := range s.requests {
		if existing.Status == domain.RegistrationPending && strings.EqualFold(existing.Email, email) {
			s.mu.Unlock()
			log.Warn("duplicate pending registration rejected")
			return "", ErrDuplicatePending
		}
	}
	s.requests[req.ID] = req
	s.mu.Unlock()

	// 3. Best-effort notifications after the insert committed.
	if s.adminEmail != "" {
		if err := s.notifier.Send(ctx, registrationAdminAlert(s.adminEmail, email, fullName, reason)); err != nil {
			log.Error("failed to alert admin of registration", slog.Any("error", err))
		}
	}
	if err := s.notifier.Send(ctx, registrationReceivedEmail(email, fullName)); err != nil {
		log.Error("failed to confirm registration receipt", slog.Any("error", err))
	}

	log.Info("registration request submitted", slog.String("request_id", req.ID))
	return req.ID, nil
}

// ListPending returns the pending queue in submission order.
func (s *RegistrationService) ListPending(ctx context.Context) []domain.PendingRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []domain.PendingRegistration
	for _, req := range s.requests {
		if req.Status == domain.RegistrationPending {
			pending = append(pending, *req)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestDate.Before(pending[j].RequestDate)
	})
	return pending
}

// Get returns a registration request by ID, pending or terminal.
func (s *RegistrationService) Get(ctx context.Context, requestID string) (domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return domain.PendingRegistration{}, ErrRegistrationNotFound
	}
	return *req, nil
}

// Approve transitions a pending request to approved, creates the account and
// emails the requester their initial credentials exactly once. The plaintext
// password is never stored; only its hash survives this call. When username
// is empty one is derived from the email local part.
func (s *RegistrationService) Approve(ctx context.Context, requestID, adminID, username string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Claim the request under the lock so two admins cannot both approve.
	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return domain.User{}, ErrRegistrationNotFound
	}
	if req.Status != domain.RegistrationPending {
		s.mu.Unlock()
		log.Warn("approval of non-pending registration rejected",
			slog.String("request_id", requestID),
			slog.String("status", req.Status),
		)
		return domain.User{}, ErrRegistrationNotPending
	}
	req.Status = domain.RegistrationApproved
	req.ReviewedBy = adminID
	req.ReviewedAt = time.Now()
	email, fullName := req.Email, req.FullName
	s.mu.Unlock()

	// 2. Issue the account. On failure the claim is rolled back so the
	// request can be retried.
	user, password, err := s.issueUser(ctx, email, username, fullName, domain.RoleUser)
	if err != nil {
		s.mu.Lock()
		if r, ok := s.requests[requestID]; ok {
			r.Status = domain.RegistrationPending
			r.ReviewedBy = ""
			r.ReviewedAt = time.Time{}
		}
		s.mu.Unlock()
		log.Error("failed to issue account for approved registration",
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		return domain.User{}, err
	}

	// 3. Deliver the credentials. One email, never logged, never stored.
	if err := s.notifier.Send(ctx, credentialsEmail(email, user.Username, password)); err != nil {
		log.Error("failed to send credentials email", slog.Any("error", err))
	}

	log.Info("registration approved",
		slog.String("request_id", requestID),
		slog.String("user_id", user.ID),
		slog.String("approved_by", adminID),
	)
	return user, nil
}

// Reject transitions a pending request to rejected and tells the requester
// why. Terminal; the record is kept for audit.
func (s *RegistrationService) Reject(ctx context.Context, requestID, adminID, reason string) error {
	log := slogx.FromContext(ctx)

	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return ErrRegistrationNotFound
	}
	if req.Status != domain.RegistrationPending {
		s.mu.Unlock()
		return ErrRegistrationNotPending
	}
	req.Status = domain.RegistrationRejected
	req.ReviewedBy = adminID
	req.ReviewedAt = time.Now()
	req.RejectionReason = reason
	email := req.Email
	s.mu.Unlock()

	if err := s.notifier.Send(ctx, rejectionEmail(email, reason)); err != nil {
		log.Error("failed to send rejection email", slog.Any("error", err))
	}

	log.Info("registration rejected",
		slog.String("request_id", requestID),
		slog.String("rejected_by", adminID),
	)
	return nil
}

// CreateAccount provisions an account directly, bypassing the request queue.
// Same uniqueness and credential rules as Approve.
func (s *RegistrationService) CreateAccount(ctx context.Context, email, username, fullName, adminID, role string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	if role == "" {
		role = domain.RoleUser
	}

	user, password, err := s.issueUser(ctx, email, username, fullName, role)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.notifier.Send(ctx, credentialsEmail(email, user.Username, password)); err != nil {
		log.Error("failed to send credentials email", slog.Any("error", err))
	}

	log.Info("account provisioned directly",
		slog.String("user_id", user.ID),
		slog.String("created_by", adminID),
		slog.String("role", role),
	)
	return user, nil
}

// HandleFirstLogin starts the mandatory 2FA setup handshake. Idempotency
// guard: once setup completed it cannot be re-triggered.
func (s *RegistrationService) HandleFirstLogin(ctx context.Context, userID string) (domain.TOTPEnrollment, error) {
	user, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TOTPEnrollment{}, ErrAccountNotFound
		}
		return domain.TOTPEnrollment{}, err
	}
	if user.TwoFactorVerified {
		return domain.TOTPEnrollment{}, ErrTwoFactorAlreadyVerified
	}

	return s.twoFactor.GenerateSecret(ctx, userID, user.Email)
}

// CompleteTwoFactorSetup verifies the first TOTP code, marks the account
// verified and returns one-time backup codes. A wrong code mutates nothing.
func (s *RegistrationService) CompleteTwoFactorSetup(ctx context.Context, userID, code string) ([]string, error) {
	log := slogx.FromContext(ctx)

	user, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if user.TwoFactorVerified {
		return nil, ErrTwoFactorAlreadyVerified
	}

	ok, err := s.twoFactor.VerifyCode(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("2FA setup code mismatch", slog.String("user_id", userID))
		return nil, ErrTwoFactorCodeMismatch
	}

	if err := s.store.Users().SetTwoFactorVerified(ctx, userID, true); err != nil {
		return nil, err
	}

	codes, err := s.twoFactor.GenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.Info("2FA setup completed", slog.String("user_id", userID))
	return codes, nil
}

// issueUser creates the account record with a fresh random password and
// returns the plaintext alongside, for one-time delivery.
func (s *RegistrationService) issueUser(ctx context.Context, email, username, fullName, role string) (domain.User, string, error) {
	// Uniqueness: email first.
	_, err := s.store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return domain.User{}, "", ErrAccountExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, "", err
	}

	username, err = s.deriveUsername(ctx, email, username)
	if err != nil {
		return domain.User{}, "", err
	}

	password, err := cryptox.RandomPassword(cryptox.DefaultPasswordLength)
	if err != nil {
		return domain.User{}, "", err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	user := domain.User{
		ID:               idx.New().String(),
		Email:            email,
		Username:         username,
		FullName:         fullName,
		PasswordHash:     hash,
		Role:             role,
		ApprovalStatus:   domain.ApprovalApproved,
		RequireTwoFactor: true,
	}

	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", ErrAccountExists
		}
		return domain.User{}, "", err
	}

	return user, password, nil
}

// deriveUsername produces the issued username: the requested one when given,
// otherwise the email local part; sanitized to lowercase alphanumerics,
// padded with random digits below three characters, and nudged with a random
// suffix until it is free.
func (s *RegistrationService) deriveUsername(ctx context.Context, email, requested string) (string, error) {
	base := requested
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}
	base = sanitizeUsername(base)

	if len(base) < minUsernameLength {
		pad, err := cryptox.RandomCode(minUsernameLength-len(base), cryptox.DigitAlphabet)
		if err != nil {
			return "", err
		}
		base += pad
	}

	candidate := base
	for range usernameRetryBudget {
		_, err := s.store.Users().GetUserByUsername(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}

		suffix, err := cryptox.RandomCode(usernameSuffixDigits, cryptox.DigitAlphabet)
		if err != nil {
			return "", err
		}
		candidate = base + suffix
	}

	return "", ErrUsernameTaken
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
