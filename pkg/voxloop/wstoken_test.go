package voxloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testAPIKey = "sk-test-0123456789abcdef0123"

func TestValidateAPIKeyFormat(t *testing.T) {
	res := ValidateAPIKeyFormat(testAPIKey)
	require.True(t, res.Success)
	require.Equal(t, ValidatedAPIKey(testAPIKey), res.Data)

	for _, bad := range []string{"", "sk-short", "no-prefix-0123456789abcdef"} {
		res := ValidateAPIKeyFormat(bad)
		require.False(t, res.Success, "key %q should be rejected", bad)
		require.Equal(t, ErrCodeAuthFailed, res.Error.Code)
	}
}

func TestGenerateAndDecodeGatewayToken(t *testing.T) {
	validated := ValidateAPIKeyFormat(testAPIKey)
	require.True(t, validated.Success)

	userID := "user-123"
	res := GenerateGatewayTokenFromAPIKey(validated.Data, &userID)
	require.True(t, res.Success)
	token := res.Data

	require.NotEmpty(t, token.Token)
	require.False(t, IsTokenExpired(token))
	require.Greater(t, GetTokenTTL(token), 0)
	require.LessOrEqual(t, GetTokenTTL(token), TokenExpiryMs/1000)

	decoded := DecodeGatewayToken(token.Token, testAPIKey)
	require.True(t, decoded.Success)
	require.Equal(t, "user-123", decoded.Data["userId"])

	// The claims carry only a key fingerprint, never the full key.
	fingerprint := decoded.Data["apiKey"].(string)
	require.Equal(t, testAPIKey[:8]+"...", fingerprint)
	require.NotContains(t, fingerprint, testAPIKey[8:])
}

func TestDecodeGatewayTokenWrongKey(t *testing.T) {
	validated := ValidateAPIKeyFormat(testAPIKey)
	require.True(t, validated.Success)
	res := GenerateGatewayTokenFromAPIKey(validated.Data, nil)
	require.True(t, res.Success)

	decoded := DecodeGatewayToken(res.Data.Token, "sk-different-0123456789abcdef")
	require.False(t, decoded.Success)
}

func TestGenerateGatewayTokenFromEnv(t *testing.T) {
	t.Setenv("VOXLOOP_API_KEY", testAPIKey)
	res := GenerateGatewayToken()
	require.True(t, res.Success)

	t.Setenv("VOXLOOP_API_KEY", "")
	res = GenerateGatewayToken()
	require.False(t, res.Success)
	require.Equal(t, ErrCodeAuthFailed, res.Error.Code)
}

func TestIsTokenExpired(t *testing.T) {
	stale := &GatewayToken{Token: "x", ExpiresAt: time.Now().UnixMilli() - 1000}
	require.True(t, IsTokenExpired(stale))
	require.Zero(t, GetTokenTTL(stale))
}
