package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomID(t *testing.T) {
	t.Parallel()

	t.Run("produces hex of the requested byte length", func(t *testing.T) {
		id, err := RandomID(16)
		require.NoError(t, err)
		require.Len(t, id, 32)
		require.Regexp(t, "^[0-9a-f]+$", id)
	})

	t.Run("rejects non-positive lengths", func(t *testing.T) {
		_, err := RandomID(0)
		require.Error(t, err)
	})

	t.Run("does not repeat", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			id, err := RandomID(16)
			require.NoError(t, err)
			_, dup := seen[id]
			require.False(t, dup)
			seen[id] = struct{}{}
		}
	})
}

func TestRandomCode(t *testing.T) {
	t.Parallel()

	t.Run("draws only from the alphabet", func(t *testing.T) {
		code, err := RandomCode(6, CodeAlphabet)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			require.True(t, strings.ContainsRune(CodeAlphabet, c))
		}
	})

	t.Run("empty alphabet falls back to default", func(t *testing.T) {
		code, err := RandomCode(8, "")
		require.NoError(t, err)
		require.Len(t, code, 8)
	})

	t.Run("rejects non-positive lengths", func(t *testing.T) {
		_, err := RandomCode(0, CodeAlphabet)
		require.Error(t, err)
	})
}

func TestRandomPassword(t *testing.T) {
	t.Parallel()

	pw, err := RandomPassword(0)
	require.NoError(t, err)
	require.Len(t, pw, DefaultPasswordLength)

	long, err := RandomPassword(32)
	require.NoError(t, err)
	require.Len(t, long, 32)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, Fingerprint("secret"), Fingerprint("secret"))
	})

	t.Run("distinct inputs yield distinct digests", func(t *testing.T) {
		require.NotEqual(t, Fingerprint("secret"), Fingerprint("secret2"))
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifyPassword("hunter2!", hash))
	require.ErrorIs(t, VerifyPassword("hunter3!", hash), ErrPasswordMismatch)

	t.Run("rejects malformed hashes", func(t *testing.T) {
		err := VerifyPassword("hunter2!", "not-a-hash")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrPasswordMismatch)
	})

	t.Run("salts make hashes unique", func(t *testing.T) {
		other, err := HashPassword("hunter2!")
		require.NoError(t, err)
		require.NotEqual(t, hash, other)
	})
}
