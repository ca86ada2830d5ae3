package config

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadRelayDefaults(t *testing.T) {
	unsetenv(t, "PORT", "ALLOWED_ORIGINS", "SEND_QUEUE")

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, ":4000", cfg.Addr())
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, 64, cfg.SendQueue)
}

func TestLoadRelayFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("SEND_QUEUE", "8")

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 8, cfg.SendQueue)
}

func TestLoadRelayRejectsBadQueue(t *testing.T) {
	t.Setenv("SEND_QUEUE", "0")
	_, err := LoadRelay()
	require.Error(t, err)

	t.Setenv("SEND_QUEUE", "many")
	_, err = LoadRelay()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("INTAKE_WS_URL", "ws://relay.example/ws")
	unsetenv(t, "INTAKE_STORE")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.example/ws", cfg.WSURL)
	assert.Equal(t, "file", cfg.Store)
}

func TestLevel(t *testing.T) {
	lvl, err := Level("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = Level(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	_, err = Level("loud")
	require.Error(t, err)
}
