package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTrustLifecycle(t *testing.T) {
	st := newTestStore(t)
	svc := NewDeviceService(st)
	ctx := context.Background()

	user := createTestUser(t, st, "miner@pool.example")

	device, err := svc.Register(ctx, user.ID, "work laptop", "203.0.113.9", "Firefox on Linux")
	require.NoError(t, err)
	require.NotEmpty(t, device.ID)

	t.Run("trusted regardless of IP", func(t *testing.T) {
		assert.True(t, svc.IsTrusted(ctx, user.ID, device.ID, "203.0.113.9"))

		// The user moved networks; identity is the device ID, not the IP.
		assert.True(t, svc.IsTrusted(ctx, user.ID, device.ID, "198.51.100.7"))

		devices := svc.ListForUser(ctx, user.ID)
		require.Len(t, devices, 1)
		assert.Equal(t, "198.51.100.7", devices[0].IPAddress)
		assert.False(t, devices[0].LastSeen.Before(device.LastSeen))
	})

	t.Run("unknown device and wrong owner are untrusted", func(t *testing.T) {
		assert.False(t, svc.IsTrusted(ctx, user.ID, "never-registered", ""))

		other := createTestUser(t, st, "other@pool.example")
		assert.False(t, svc.IsTrusted(ctx, other.ID, device.ID, ""))
	})

	t.Run("device ID list is persisted on the account", func(t *testing.T) {
		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{device.ID}, stored.DeviceIDs)
	})

	t.Run("removal revokes trust", func(t *testing.T) {
		require.NoError(t, svc.Remove(ctx, user.ID, device.ID))
		assert.False(t, svc.IsTrusted(ctx, user.ID, device.ID, ""))
		assert.Empty(t, svc.ListForUser(ctx, user.ID))

		assert.ErrorIs(t, svc.Remove(ctx, user.ID, device.ID), ErrDeviceNotFound)

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.DeviceIDs)
	})
}

func TestDeviceRegisterUnknownUser(t *testing.T) {
	st := newTestStore(t)
	svc := NewDeviceService(st)

	_, err := svc.Register(context.Background(), "no-such-user", "laptop", "", "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
