package voxloop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("VOXLOOP_WS_ENDPOINT", "")
	t.Setenv("VOXLOOP_TOKEN_ENDPOINT", "")

	c := NewConfig()
	require.Contains(t, c.Endpoint, "wss://")
	require.False(t, c.UseTokenAuth)
	require.Equal(t, 3, c.MaxReconnectAttempts)
	require.Equal(t, 30*time.Second, c.ResponseTimeout)
	require.Equal(t, "info", c.LogLevel)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VOXLOOP_WS_ENDPOINT", "ws://localhost:8000/v1/realtime")
	t.Setenv("VOXLOOP_TOKEN_ENDPOINT", "https://auth.example/token")
	t.Setenv("VOXLOOP_MAX_RECONNECT_ATTEMPTS", "7")
	t.Setenv("VOXLOOP_RESPONSE_TIMEOUT", "45s")
	t.Setenv("VOXLOOP_LOG_LEVEL", "debug")

	c := NewConfig()
	require.Equal(t, "ws://localhost:8000/v1/realtime", c.Endpoint)
	require.Equal(t, "https://auth.example/token", c.TokenEndpoint)
	require.True(t, c.UseTokenAuth, "a token endpoint implies token auth")
	require.Equal(t, 7, c.MaxReconnectAttempts)
	require.Equal(t, 45*time.Second, c.ResponseTimeout)
	require.Equal(t, "debug", c.LogLevel)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("VOXLOOP_API_KEY", "sk-test-0123456789abcdef")

	c := NewConfig()
	c.Endpoint = "wss://api.example.com/v1/realtime"
	require.Empty(t, c.Validate())

	c.Endpoint = "https://not-websocket.example"
	c.LogLevel = "loud"
	c.ResponseTimeout = 0
	issues := c.Validate()
	require.Len(t, issues, 3)
}

func TestConfigValidateMissingCredentials(t *testing.T) {
	t.Setenv("VOXLOOP_API_KEY", "")

	c := NewConfig()
	c.TokenEndpoint = ""
	issues := c.Validate()
	require.NotEmpty(t, issues)
}

func TestAudioConfigChunkBytes(t *testing.T) {
	a := NewAudioConfig()
	// 24 kHz, 16-bit mono, 200 ms
	require.Equal(t, 9600, a.ChunkBytes())

	a.ChunkMs = 100
	require.Equal(t, 4800, a.ChunkBytes())

	a.SampleRate = 16000
	require.Equal(t, 3200, a.ChunkBytes())
}

func TestProfileApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint = "wss://profile.example/v1/realtime"
log_level = "debug"
sample_rate = 16000
chunk_ms = 100
max_turn_seconds = 20
instructions = "Be brief."
vad_threshold = 0.7
silence_ms = 800
`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	c := NewConfig()
	a := NewAudioConfig()
	s := NewSessionOptions()
	p.Apply(c, a, s)

	require.Equal(t, "wss://profile.example/v1/realtime", c.Endpoint)
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, 16000, a.SampleRate)
	require.Equal(t, 100, a.ChunkMs)
	require.Equal(t, 20*time.Second, a.MaxTurnDuration)
	require.Equal(t, "Be brief.", s.Instructions)
	require.InDelta(t, 0.7, s.VADThreshold, 1e-9)
	require.Equal(t, 800, s.SilenceDurationMs)
	// Untouched fields keep their defaults.
	require.Equal(t, 300, s.PrefixPaddingMs)
}

func TestLoadProfileErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint = ["), 0o644))
	_, err = LoadProfile(path)
	require.Error(t, err)

	var verr *VoxError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrCodeConfigInvalid, verr.Code)
}
