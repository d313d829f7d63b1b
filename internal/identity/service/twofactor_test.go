package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorVerifyCode(t *testing.T) {
	st := newTestStore(t)
	svc := &TwoFactorService{Store: st, Issuer: "PoolWorks"}
	ctx := context.Background()

	user := createTestUser(t, st, "miner@pool.example")

	t.Run("not enrolled", func(t *testing.T) {
		_, err := svc.VerifyCode(ctx, user.ID, "123456")
		assert.ErrorIs(t, err, ErrTwoFactorNotEnrolled)
	})

	enrollment, err := svc.GenerateSecret(ctx, user.ID, user.Email)
	require.NoError(t, err)

	t.Run("valid code", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now())
		require.NoError(t, err)

		ok, err := svc.VerifyCode(ctx, user.ID, code)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong code", func(t *testing.T) {
		ok, err := svc.VerifyCode(ctx, user.ID, "000000")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTwoFactorGenerateSecretGuard(t *testing.T) {
	st := newTestStore(t)
	svc := &TwoFactorService{Store: st, Issuer: "PoolWorks"}
	ctx := context.Background()

	user := createTestUser(t, st, "done@pool.example")
	_, err := svc.GenerateSecret(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, st.Users().SetTwoFactorVerified(ctx, user.ID, true))

	_, err = svc.GenerateSecret(ctx, user.ID, user.Email)
	assert.ErrorIs(t, err, ErrTwoFactorAlreadyVerified)
}

func TestTwoFactorBackupCodes(t *testing.T) {
	st := newTestStore(t)
	svc := &TwoFactorService{Store: st, Issuer: "PoolWorks"}
	ctx := context.Background()

	user := createTestUser(t, st, "backup@pool.example")

	codes, err := svc.GenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)

	// Each code works exactly once.
	ok, err := svc.UseBackupCode(ctx, user.ID, codes[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.UseBackupCode(ctx, user.ID, codes[0])
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := st.BackupCodes().CountUserBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, backupCodeCount-1, count)

	// Regeneration replaces the whole set; the old codes die.
	fresh, err := svc.GenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)

	ok, err = svc.UseBackupCode(ctx, user.ID, codes[1])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.UseBackupCode(ctx, user.ID, fresh[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTwoFactorResetEnrollment(t *testing.T) {
	st := newTestStore(t)
	svc := &TwoFactorService{Store: st, Issuer: "PoolWorks"}
	ctx := context.Background()

	user := createTestUser(t, st, "reset@pool.example")

	first, err := svc.GenerateSecret(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, st.Users().SetTwoFactorVerified(ctx, user.ID, true))
	_, err = svc.GenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)

	second, err := svc.ResetEnrollment(ctx, user.ID, user.Email)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorVerified)

	count, err := st.BackupCodes().CountUserBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
