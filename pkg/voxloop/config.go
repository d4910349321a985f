package voxloop

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds client-level settings. Values come from defaults, then the
// environment (VOXLOOP_* variables, .env supported), then any TOML profile
// applied on top.
type Config struct {
	Endpoint             string            `json:"endpoint"`
	Headers              map[string]string `json:"headers,omitempty"`
	UseTokenAuth         bool              `json:"use_token_auth"`
	TokenEndpoint        string            `json:"token_endpoint,omitempty"`
	TokenRefreshBuffer   float64           `json:"token_refresh_buffer"`
	MaxReconnectAttempts int               `json:"max_reconnect_attempts"`
	ReconnectDelay       float64           `json:"reconnect_delay"`
	ResponseTimeout      time.Duration     `json:"response_timeout"`
	LogLevel             string            `json:"log_level"`
	DebugWebsocket       bool              `json:"debug_websocket"`
	DebugAudio           bool              `json:"debug_audio"`
}

func NewConfig() *Config {
	c := &Config{
		Endpoint:             "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview",
		Headers:              map[string]string{"OpenAI-Beta": "realtime=v1"},
		UseTokenAuth:         false,
		TokenRefreshBuffer:   60.0,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       1.0,
		ResponseTimeout:      30 * time.Second,
		LogLevel:             "info",
	}
	c.loadFromEnv()
	return c
}

func (c *Config) loadFromEnv() {
	_ = godotenv.Load()

	if endpoint := os.Getenv("VOXLOOP_WS_ENDPOINT"); endpoint != "" {
		c.Endpoint = endpoint
	}
	if tokenEndpoint := os.Getenv("VOXLOOP_TOKEN_ENDPOINT"); tokenEndpoint != "" {
		c.TokenEndpoint = tokenEndpoint
		c.UseTokenAuth = true
	}
	c.UseTokenAuth = c.UseTokenAuth || os.Getenv("VOXLOOP_USE_TOKEN_AUTH") == "true"

	if attempts := os.Getenv("VOXLOOP_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil {
			c.MaxReconnectAttempts = val
		}
	}
	if delay := os.Getenv("VOXLOOP_RECONNECT_DELAY"); delay != "" {
		if val, err := strconv.ParseFloat(delay, 64); err == nil {
			c.ReconnectDelay = val
		}
	}
	if timeout := os.Getenv("VOXLOOP_RESPONSE_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			c.ResponseTimeout = val
		}
	}
	if level := os.Getenv("VOXLOOP_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	c.DebugWebsocket = os.Getenv("VOXLOOP_DEBUG_WEBSOCKET") == "true"
	c.DebugAudio = os.Getenv("VOXLOOP_DEBUG_AUDIO") == "true"
}

// APIKey reads the credential from the environment; it is never stored in
// the config struct.
func APIKey() string {
	return os.Getenv("VOXLOOP_API_KEY")
}

// Validate returns a list of issues; empty means usable.
func (c *Config) Validate() []string {
	var issues []string

	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		issues = append(issues, fmt.Sprintf("endpoint must be a ws:// or wss:// URL, got %q", c.Endpoint))
	}
	if APIKey() == "" && c.TokenEndpoint == "" {
		issues = append(issues, "VOXLOOP_API_KEY not set and no token endpoint configured")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("invalid log level: %s", c.LogLevel))
	}
	if c.ResponseTimeout <= 0 {
		issues = append(issues, "response timeout must be positive")
	}
	return issues
}

// AudioConfig holds capture/playback parameters. The chunk size follows
// from sample rate and chunk duration: SampleRate * 2 bytes * ChunkMs/1000.
type AudioConfig struct {
	SampleRate      int
	Channels        int
	Format          string
	ChunkMs         int
	ChunkPace       time.Duration
	MaxTurnDuration time.Duration
	DeviceID        *int
}

func NewAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate:      24000,
		Channels:        1,
		Format:          "pcm16",
		ChunkMs:         200,
		ChunkPace:       10 * time.Millisecond,
		MaxTurnDuration: 60 * time.Second,
	}
}

// ChunkBytes returns the fixed capture chunk size in bytes.
func (a *AudioConfig) ChunkBytes() int {
	return a.SampleRate * 2 * a.ChunkMs / 1000
}

// Profile is an optional TOML file layering endpoint, audio, and session
// settings over the environment-derived config.
type Profile struct {
	Endpoint        string  `toml:"endpoint"`
	LogLevel        string  `toml:"log_level"`
	SampleRate      int     `toml:"sample_rate"`
	ChunkMs         int     `toml:"chunk_ms"`
	MaxTurnSeconds  int     `toml:"max_turn_seconds"`
	Instructions    string  `toml:"instructions"`
	VADThreshold    float64 `toml:"vad_threshold"`
	SilenceMs       int     `toml:"silence_ms"`
	PrefixPaddingMs int     `toml:"prefix_padding_ms"`
}

func LoadProfile(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, WrapError(err, ErrCodeConfigInvalid)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, WrapError(err, ErrCodeConfigInvalid).AddDetail("path", path)
	}
	return p, nil
}

// Apply overlays the profile's non-zero fields.
func (p Profile) Apply(c *Config, a *AudioConfig, s *SessionOptions) {
	if p.Endpoint != "" {
		c.Endpoint = p.Endpoint
	}
	if p.LogLevel != "" {
		c.LogLevel = p.LogLevel
	}
	if p.SampleRate > 0 {
		a.SampleRate = p.SampleRate
	}
	if p.ChunkMs > 0 {
		a.ChunkMs = p.ChunkMs
	}
	if p.MaxTurnSeconds > 0 {
		a.MaxTurnDuration = time.Duration(p.MaxTurnSeconds) * time.Second
	}
	if p.Instructions != "" {
		s.Instructions = p.Instructions
	}
	if p.VADThreshold > 0 {
		s.VADThreshold = p.VADThreshold
	}
	if p.SilenceMs > 0 {
		s.SilenceDurationMs = p.SilenceMs
	}
	if p.PrefixPaddingMs > 0 {
		s.PrefixPaddingMs = p.PrefixPaddingMs
	}
}
