package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointContextAt rewrites the current context's server URL, so commands
// under test talk to the fake backend
func pointContextAt(t *testing.T, serverURL string) {
	t.Helper()

	config, err := LoadConfig()
	require.NoError(t, err)

	ctx, err := config.GetCurrentContext()
	require.NoError(t, err)
	ctx.Server.URL = serverURL
	require.NoError(t, SaveConfig(config))
}

func TestAuthStatus_ValidSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	backend := newTestBackend(t)
	pointContextAt(t, backend.server.URL)

	require.NoError(t, SaveCredentials(&Credentials{
		SessionCookie: backend.sessionCookie,
		UserID:        backend.userID,
	}))

	cmd := newAuthStatusCommand()
	require.NoError(t, cmd.Execute())

	// Credentials survive a successful check
	_, err := LoadCredentials()
	assert.NoError(t, err)
}

func TestAuthStatus_RevokedSessionClearsCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	backend := newTestBackend(t)
	pointContextAt(t, backend.server.URL)

	// A cookie the backend no longer recognizes
	require.NoError(t, SaveCredentials(&Credentials{
		SessionCookie: "s:revoked.c2ln",
		UserID:        "user-42",
	}))

	cmd := newAuthStatusCommand()
	require.NoError(t, cmd.Execute())

	// The stale credentials were removed; the user must log in again
	_, err := LoadCredentials()
	assert.ErrorContains(t, err, "not logged in")
}

func TestAuthLogout_RemovesCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	backend := newTestBackend(t)
	pointContextAt(t, backend.server.URL)

	require.NoError(t, SaveCredentials(&Credentials{
		SessionCookie: backend.sessionCookie,
		UserID:        backend.userID,
	}))

	cmd := newAuthLogoutCommand()
	require.NoError(t, cmd.Execute())

	_, err := LoadCredentials()
	assert.ErrorContains(t, err, "not logged in")
}

func TestAuthLogout_NotLoggedIn(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := newAuthLogoutCommand()
	assert.Error(t, cmd.Execute())
}
