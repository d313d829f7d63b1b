package service

import (
	"context"
	"testing"
	"time"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrationFixture(t *testing.T) (*RegistrationService, *captureNotifier) {
	t.Helper()

	st := newTestStore(t)
	notifier := &captureNotifier{}
	twoFactor := &TwoFactorService{Store: st, Issuer: "PoolWorks"}
	return NewRegistrationService(st, notifier, twoFactor, "admin@pool.example"), notifier
}

func TestRegistrationSubmit(t *testing.T) {
	svc, notifier := newRegistrationFixture(t)
	ctx := context.Background()

	requestID, err := svc.Submit(ctx, "new@pool.example", "New Miner", "joining the pool", "203.0.113.9", "")
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	pending := svc.ListPending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, "new@pool.example", pending[0].Email)
	assert.Equal(t, domain.RegistrationPending, pending[0].Status)

	// Both the admin and the requester were told.
	assert.Contains(t, notifier.lastTo(t, "admin@pool.example").HTML, "new@pool.example")
	assert.Contains(t, notifier.lastTo(t, "new@pool.example").Subject, "received")
}

func TestRegistrationDuplicatePending(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "dup@pool.example", "First", "reason", "", "")
	require.NoError(t, err)

	// Case-insensitive duplicate check.
	_, err = svc.Submit(ctx, "DUP@pool.example", "Second", "reason", "", "")
	assert.ErrorIs(t, err, ErrDuplicatePending)
}

func TestRegistrationResubmitAfterRejection(t *testing.T) {
	svc, notifier := newRegistrationFixture(t)
	ctx := context.Background()

	requestID, err := svc.Submit(ctx, "retry@pool.example", "Retry", "first try", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, requestID, "admin-1", "insufficient detail"))
	assert.Contains(t, notifier.lastTo(t, "retry@pool.example").HTML, "insufficient detail")

	// Terminal records don't block a fresh submission.
	_, err = svc.Submit(ctx, "retry@pool.example", "Retry", "second try", "", "")
	assert.NoError(t, err)

	// But the rejected record is retained for audit.
	rejected, err := svc.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationRejected, rejected.Status)
	assert.Equal(t, "admin-1", rejected.ReviewedBy)
}

func TestRegistrationSubmitExistingAccount(t *testing.T) {
	svc, _ := newRegistrationFixture(t)

	createTestUser(t, svc.store, "taken@pool.example")

	_, err := svc.Submit(context.Background(), "taken@pool.example", "Imposter", "reason", "", "")
	assert.ErrorIs(t, err, ErrAccountExists)

	// Same user-facing message as a duplicate pending request.
	assert.Equal(t, UserMessage(ErrDuplicatePending), UserMessage(err))
}

func TestRegistrationApproveAndFirstLogin(t *testing.T) {
	svc, notifier := newRegistrationFixture(t)
	ctx := context.Background()

	requestID, err := svc.Submit(ctx, "approved@pool.example", "Approved Miner", "reason", "", "")
	require.NoError(t, err)

	user, err := svc.Approve(ctx, requestID, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, "approved", user.Username) // derived from the email local part
	assert.True(t, user.RequireTwoFactor)
	assert.False(t, user.TwoFactorVerified)

	// The credentials email carries the username and temporary password, and
	// the issued password verifies against the stored hash.
	credMsg := notifier.lastTo(t, "approved@pool.example")
	require.Contains(t, credMsg.Subject, "approved")
	bolds := boldRE.FindAllStringSubmatch(credMsg.HTML, -1)
	require.Len(t, bolds, 2)
	assert.Equal(t, user.Username, bolds[0][1])
	require.NoError(t, cryptox.VerifyPassword(bolds[1][1], user.PasswordHash))

	// A second approval of the same request is refused.
	_, err = svc.Approve(ctx, requestID, "admin-2", "")
	assert.ErrorIs(t, err, ErrRegistrationNotPending)

	// First login: enroll, then verify a real TOTP code.
	enrollment, err := svc.HandleFirstLogin(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	backupCodes, err := svc.CompleteTwoFactorSetup(ctx, user.ID, code)
	require.NoError(t, err)
	assert.Len(t, backupCodes, backupCodeCount)

	// Setup is terminal; it cannot be re-triggered.
	_, err = svc.HandleFirstLogin(ctx, user.ID)
	assert.ErrorIs(t, err, ErrTwoFactorAlreadyVerified)
	_, err = svc.CompleteTwoFactorSetup(ctx, user.ID, code)
	assert.ErrorIs(t, err, ErrTwoFactorAlreadyVerified)
}

func TestRegistrationCompleteSetupWrongCode(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	ctx := context.Background()

	user, err := svc.CreateAccount(ctx, "setup@pool.example", "", "Setup Miner", "admin-1", "")
	require.NoError(t, err)

	_, err = svc.HandleFirstLogin(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.CompleteTwoFactorSetup(ctx, user.ID, "000000")
	assert.ErrorIs(t, err, ErrTwoFactorCodeMismatch)

	// A wrong code mutates nothing; the account is still unverified.
	stored, err := svc.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorVerified)
}

func TestRegistrationUsernameDerivation(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	ctx := context.Background()

	t.Run("short local part is padded", func(t *testing.T) {
		user, err := svc.CreateAccount(ctx, "ab@pool.example", "", "Short", "admin-1", "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(user.Username), minUsernameLength)
		assert.Regexp(t, `^[a-z0-9]+$`, user.Username)
	})

	t.Run("collision gets a random suffix", func(t *testing.T) {
		first, err := svc.CreateAccount(ctx, "miner@one.example", "", "One", "admin-1", "")
		require.NoError(t, err)
		assert.Equal(t, "miner", first.Username)

		second, err := svc.CreateAccount(ctx, "miner@two.example", "", "Two", "admin-1", "")
		require.NoError(t, err)
		assert.NotEqual(t, first.Username, second.Username)
		assert.Regexp(t, `^miner[0-9]+$`, second.Username)
	})

	t.Run("mixed case and symbols are sanitized", func(t *testing.T) {
		user, err := svc.CreateAccount(ctx, "x@pool.example", "Rig.Owner_42", "Rig Owner", "admin-1", "")
		require.NoError(t, err)
		assert.Equal(t, "rigowner42", user.Username)
	})
}

func TestRegistrationCreateAccountDuplicateEmail(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "direct@pool.example", "", "Direct", "admin-1", "")
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, "direct@pool.example", "", "Direct Again", "admin-1", "")
	assert.ErrorIs(t, err, ErrAccountExists)
}
