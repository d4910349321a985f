package voxloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TokenManager fetches and caches short-lived tokens from an application
// token endpoint, refreshing ahead of expiry.
type TokenManager struct {
	endpoint      string
	headers       map[string]string
	refreshBuffer float64
	httpClient    *http.Client
	log           *Logger

	mu        sync.Mutex
	token     *string
	expiresAt time.Time
}

func NewTokenManager(endpoint string, headers map[string]string, refreshBuffer float64) *TokenManager {
	return &TokenManager{
		endpoint:      endpoint,
		headers:       headers,
		refreshBuffer: refreshBuffer,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		log:           GetGlobalLogger().WithComponent("TokenManager"),
	}
}

// GetToken returns a cached token, refreshing it when within the refresh
// buffer of expiry.
func (tm *TokenManager) GetToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	currentTime := time.Now()
	if tm.token != nil && currentTime.Before(tm.expiresAt.Add(time.Duration(-tm.refreshBuffer)*time.Second)) {
		return *tm.token, nil
	}

	return tm.refreshToken(ctx)
}

func (tm *TokenManager) refreshToken(ctx context.Context) (string, error) {
	reqHeaders := map[string]string{
		"Content-Type": "application/json",
	}
	for k, v := range tm.headers {
		reqHeaders[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tm.endpoint, bytes.NewBuffer([]byte("{}")))
	if err != nil {
		return "", NewAuthError("failed to build token request").WithCause(err)
	}

	for k, v := range reqHeaders {
		req.Header.Set(k, v)
	}

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", NewAuthError("token endpoint unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewAuthError(fmt.Sprintf("failed to refresh token: %s", resp.Status))
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", NewAuthError("invalid token response").WithCause(err)
	}

	token, ok := data["token"].(string)
	if !ok || token == "" {
		return "", NewAuthError("no token received")
	}

	expiresAt, ok := data["expiresAt"].(float64)
	if !ok {
		return "", NewAuthError("invalid expiresAt")
	}

	tm.token = &token
	tm.expiresAt = time.UnixMilli(int64(expiresAt))
	tm.log.WithField("ttl_seconds", int(time.Until(tm.expiresAt).Seconds())).Debug("Token refreshed")

	return token, nil
}

// Clear drops the cached token so the next GetToken forces a refresh.
func (tm *TokenManager) Clear() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = nil
	tm.expiresAt = time.Time{}
}

// GetTokenInfo returns the cached token and its expiry in epoch millis.
func (tm *TokenManager) GetTokenInfo() (*string, *float64) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.token == nil {
		return nil, nil
	}
	expires := float64(tm.expiresAt.UnixMilli())
	return tm.token, &expires
}

// EphemeralKey is a single-use client credential minted by the sessions
// REST endpoint for browser and edge clients.
type EphemeralKey struct {
	Value     string
	ExpiresAt time.Time
	SessionID string
}

type ephemeralSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

type ephemeralSessionResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// CreateEphemeralKey mints an ephemeral client key via the sessions REST
// API using a standing API key. The standing key stays server-side.
func CreateEphemeralKey(ctx context.Context, baseURL, apiKey, model string) (*EphemeralKey, error) {
	body, err := json.Marshal(ephemeralSessionRequest{Model: model})
	if err != nil {
		return nil, NewAuthError("failed to encode session request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, NewAuthError("failed to build session request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewAuthError("sessions endpoint unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewAuthError(fmt.Sprintf("session creation failed: %s", resp.Status))
	}

	var parsed ephemeralSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewAuthError("invalid session response").WithCause(err)
	}
	if parsed.ClientSecret.Value == "" {
		return nil, NewAuthError("no client secret in session response")
	}

	return &EphemeralKey{
		Value:     parsed.ClientSecret.Value,
		ExpiresAt: time.Unix(parsed.ClientSecret.ExpiresAt, 0),
		SessionID: parsed.ID,
	}, nil
}
