package service

import (
	"context"
	"testing"

	"github.com/poolworks/identity/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialEmergencyCode = "INITIAL0SEED0CODE"

func newVaultFixture(t *testing.T) (*VaultService, *captureNotifier, *jwtx.Signer) {
	t.Helper()

	signer, err := jwtx.NewEphemeralSigner("poolworks-identity")
	require.NoError(t, err)

	notifier := &captureNotifier{}
	return NewVaultService(notifier, signer, "admin@pool.example", initialEmergencyCode), notifier, signer
}

func TestVaultUseCodeRotates(t *testing.T) {
	svc, notifier, signer := newVaultFixture(t)
	ctx := context.Background()

	token, err := svc.UseCode(ctx, initialEmergencyCode)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, emergencySubject, claims.Subject)
	assert.Equal(t, []string{"emergency_code"}, claims.AMR)

	// The presented code died on use.
	_, err = svc.UseCode(ctx, initialEmergencyCode)
	assert.ErrorIs(t, err, ErrEmergencyCodeMismatch)

	// The successor code from the admin email works exactly once.
	next := firstBold(t, notifier.lastTo(t, "admin@pool.example").HTML)
	require.NotEqual(t, initialEmergencyCode, next)

	_, err = svc.UseCode(ctx, next)
	require.NoError(t, err)
	_, err = svc.UseCode(ctx, next)
	assert.ErrorIs(t, err, ErrEmergencyCodeMismatch)
}

func TestVaultWrongCode(t *testing.T) {
	svc, _, _ := newVaultFixture(t)

	_, err := svc.UseCode(context.Background(), "not the code")
	assert.ErrorIs(t, err, ErrEmergencyCodeMismatch)
	assert.Equal(t, "invalid code", UserMessage(err))

	// A failed guess does not rotate the code.
	_, err = svc.UseCode(context.Background(), initialEmergencyCode)
	assert.NoError(t, err)
}

func TestVaultRateLimit(t *testing.T) {
	svc, _, _ := newVaultFixture(t)
	ctx := context.Background()

	for range emergencyAttemptsPerMinute {
		_, err := svc.UseCode(ctx, "wrong")
		assert.ErrorIs(t, err, ErrEmergencyCodeMismatch)
	}

	// The burst is spent; even the correct code is refused now.
	_, err := svc.UseCode(ctx, initialEmergencyCode)
	assert.ErrorIs(t, err, ErrEmergencyRateLimited)

	// Rate-limited and wrong-code rejections look identical to the caller.
	assert.Equal(t, UserMessage(ErrEmergencyCodeMismatch), UserMessage(err))
}

func TestVaultOperatorRotate(t *testing.T) {
	svc, notifier, _ := newVaultFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Rotate(ctx))

	// The old code is invalidated without ever being presented.
	_, err := svc.UseCode(ctx, initialEmergencyCode)
	assert.ErrorIs(t, err, ErrEmergencyCodeMismatch)

	next := firstBold(t, notifier.lastTo(t, "admin@pool.example").HTML)
	_, err = svc.UseCode(ctx, next)
	assert.NoError(t, err)
}
