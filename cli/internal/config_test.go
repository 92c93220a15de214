package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "dev", config.CurrentContext)

	ctx, err := config.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3001", ctx.Server.URL)
	assert.Equal(t, defaultCallbackPort, ctx.CallbackPort())
}

func TestConfig_ContextRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config, err := LoadConfig()
	require.NoError(t, err)

	prod := &Context{}
	prod.Server.URL = "https://auth.example.com"
	prod.Login.CallbackPort = 9090
	config.AddContext("prod", prod)
	require.NoError(t, config.SetCurrentContext("prod"))
	require.NoError(t, SaveConfig(config))

	reloaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", reloaded.CurrentContext)

	url, err := reloaded.ServerURL()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", url)

	ctx, err := reloaded.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, 9090, ctx.CallbackPort())
}

func TestConfig_DeleteContext(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config, err := LoadConfig()
	require.NoError(t, err)

	staging := &Context{}
	staging.Server.URL = "https://staging.example.com"
	config.AddContext("staging", staging)

	// The current context cannot be deleted
	assert.Error(t, config.DeleteContext("dev"))

	require.NoError(t, config.DeleteContext("staging"))
	assert.Error(t, config.DeleteContext("staging"))
}

func TestConfig_UseUnknownContext(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Error(t, config.SetCurrentContext("nonexistent"))
}
