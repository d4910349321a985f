package voxloop

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// RealtimeClient bundles configuration, audio I/O, and the duplex loop
// behind one entry point. Each Run manages its own connection; a dropped
// connection is redialed up to MaxReconnectAttempts times with a fixed
// delay between attempts.
type RealtimeClient struct {
	config       *Config
	audioConfig  *AudioConfig
	sessionOpts  *SessionOptions
	tokenManager *TokenManager
	trigger      Trigger
	indicator    StatusIndicator
	source       AudioSource
	sink         AudioSink
	log          *Logger

	mu            sync.Mutex
	eventHandlers []EventHandler
	errorHandlers []ErrorHandler
	levelHandler  LevelHandler
}

func NewRealtimeClient(config *Config, audioConfig *AudioConfig, sessionOpts *SessionOptions) *RealtimeClient {
	if config == nil {
		config = NewConfig()
	}
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	if sessionOpts == nil {
		sessionOpts = NewSessionOptions()
	}

	SetGlobalLogger(NewLogger(&LogConfig{Level: config.LogLevel, Pretty: true, Output: os.Stderr}))

	c := &RealtimeClient{
		config:      config,
		audioConfig: audioConfig,
		sessionOpts: sessionOpts,
		trigger:     NewManualTrigger(),
		log:         GetGlobalLogger().WithComponent("client"),
	}
	if config.UseTokenAuth && config.TokenEndpoint != "" {
		c.tokenManager = NewTokenManager(config.TokenEndpoint, config.Headers, config.TokenRefreshBuffer)
	}
	return c
}

// SetAudioIO injects capture and playback devices. When unset, Run opens
// the default microphone and speaker via PortAudio.
func (c *RealtimeClient) SetAudioIO(source AudioSource, sink AudioSink) {
	c.source = source
	c.sink = sink
}

// SetTrigger replaces the default manual trigger.
func (c *RealtimeClient) SetTrigger(t Trigger) {
	c.trigger = t
}

// SetIndicator installs a status indicator; nil keeps the log default.
func (c *RealtimeClient) SetIndicator(ind StatusIndicator) {
	c.indicator = ind
}

// Trigger returns the client's push-to-talk trigger.
func (c *RealtimeClient) Trigger() Trigger {
	return c.trigger
}

func (c *RealtimeClient) AddEventHandler(h EventHandler) {
	c.mu.Lock()
	c.eventHandlers = append(c.eventHandlers, h)
	c.mu.Unlock()
}

func (c *RealtimeClient) AddErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	c.errorHandlers = append(c.errorHandlers, h)
	c.mu.Unlock()
}

// SetLevelHandler installs a recording level callback.
func (c *RealtimeClient) SetLevelHandler(h LevelHandler) {
	c.mu.Lock()
	c.levelHandler = h
	c.mu.Unlock()
}

// endpoint resolves the configured URL and attaches auth headers. With
// token auth the credential comes from the token endpoint; otherwise the
// standing API key is sent as a bearer token.
func (c *RealtimeClient) endpoint(ctx context.Context) (Endpoint, error) {
	ep, err := ParseEndpoint(c.config.Endpoint)
	if err != nil {
		return Endpoint{}, err
	}

	headers := make(map[string]string, len(c.config.Headers)+1)
	for k, v := range c.config.Headers {
		headers[k] = v
	}

	if c.tokenManager != nil {
		token, err := c.tokenManager.GetToken(ctx)
		if err != nil {
			return Endpoint{}, err
		}
		headers["Authorization"] = "Bearer " + token
	} else {
		key := APIKey()
		if key == "" {
			return Endpoint{}, NewAuthError("VOXLOOP_API_KEY not set and no token endpoint configured")
		}
		headers["Authorization"] = "Bearer " + key
	}

	ep.Headers = headers
	return ep, nil
}

// Run opens the audio devices and drives connect/run/reconnect until the
// context ends or a non-retryable error occurs.
func (c *RealtimeClient) Run(ctx context.Context) error {
	if issues := c.config.Validate(); len(issues) > 0 {
		return NewConfigError("invalid configuration: " + strings.Join(issues, "; "))
	}

	if err := c.openAudio(); err != nil {
		return err
	}
	defer c.closeAudio()

	attempts := 0
	for {
		err := c.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		var verr *VoxError
		if v, ok := err.(*VoxError); ok {
			verr = v
		} else {
			verr = WrapError(err, ErrCodeConnectionFailed)
		}
		if IsCriticalError(verr) || !IsRetryableError(verr) {
			return verr
		}

		attempts++
		if attempts > c.config.MaxReconnectAttempts {
			c.log.WithField("attempts", attempts-1).Error("Reconnect attempts exhausted")
			return verr
		}

		delay := time.Duration(c.config.ReconnectDelay * float64(time.Second))
		c.log.WithFields(map[string]interface{}{
			"attempt": attempts,
			"max":     c.config.MaxReconnectAttempts,
			"delay":   delay.String(),
		}).Warn("Connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce performs one full connection lifecycle: dial, configure the
// session, run the duplex loop, close.
func (c *RealtimeClient) runOnce(ctx context.Context) error {
	ep, err := c.endpoint(ctx)
	if err != nil {
		return err
	}

	conn, err := Dial(ctx, ep)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := NewSessionController(c.sessionOpts)
	if err := session.Configure(conn); err != nil {
		return err
	}

	pump := NewCapturePump(c.source, conn, c.audioConfig)
	playback := NewPlaybackSink(c.sink)

	c.mu.Lock()
	if c.levelHandler != nil {
		pump.SetLevelHandler(c.levelHandler)
	}
	eventHandlers := c.eventHandlers
	errorHandlers := c.errorHandlers
	c.mu.Unlock()

	orch := NewOrchestrator(conn, session, pump, playback, c.trigger, c.indicator, c.config.ResponseTimeout)
	for _, h := range eventHandlers {
		orch.AddEventHandler(h)
	}
	for _, h := range errorHandlers {
		orch.AddErrorHandler(h)
	}

	return orch.Run(ctx)
}

func (c *RealtimeClient) openAudio() error {
	if c.source == nil {
		mic := NewMicSource(c.audioConfig)
		if err := mic.Open(); err != nil {
			return err
		}
		c.source = mic
	}
	if c.sink == nil {
		spk := NewSpeakerSink(c.audioConfig)
		if err := spk.Open(); err != nil {
			c.closeAudio()
			return err
		}
		c.sink = spk
	}
	return nil
}

func (c *RealtimeClient) closeAudio() {
	if mic, ok := c.source.(*MicSource); ok {
		if err := mic.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close microphone")
		}
	}
	if spk, ok := c.sink.(*SpeakerSink); ok {
		if err := spk.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close speaker")
		}
	}
}

// GatewayTokenString mints a gateway auth token from the environment API
// key, for callers fronting the realtime endpoint with their own gateway.
func (c *RealtimeClient) GatewayTokenString() (string, error) {
	result := GenerateGatewayToken()
	if !result.Success {
		return "", result.Error
	}
	return result.Data.Token, nil
}

// String describes the client for logs.
func (c *RealtimeClient) String() string {
	return fmt.Sprintf("RealtimeClient(endpoint=%s, token_auth=%v)", c.config.Endpoint, c.config.UseTokenAuth)
}
