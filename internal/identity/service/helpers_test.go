package service

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/internal/identity/notify"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/internal/identity/store/drivers/sqlite"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/idx"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

// captureNotifier records every message instead of sending it.
type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.msgs))
	copy(out, n.msgs)
	return out
}

// lastTo returns the most recent message addressed to the given recipient.
func (n *captureNotifier) lastTo(t *testing.T, to string) notify.Message {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].To == to {
			return n.msgs[i]
		}
	}
	t.Fatalf("no message captured for %s", to)
	return notify.Message{}
}

var boldRE = regexp.MustCompile(`<b>([^<]+)</b>`)

// firstBold extracts the first <b>…</b> value from an email body; the
// builders put the secret (code, password) there.
func firstBold(t *testing.T, html string) string {
	t.Helper()

	m := boldRE.FindStringSubmatch(html)
	require.NotNil(t, m, "no bold value in email body")
	return m[1]
}

func createTestUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	// Username from the ULID's random tail; the leading characters are
	// timestamp bits and collide within a millisecond.
	id := idx.New().String()
	user := domain.User{
		ID:               id,
		Email:            email,
		Username:         "u" + strings.ToLower(id[len(id)-8:]),
		FullName:         "Test User",
		PasswordHash:     hash,
		Role:             domain.RoleUser,
		ApprovalStatus:   domain.ApprovalApproved,
		RequireTwoFactor: true,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), user))
	return user
}
