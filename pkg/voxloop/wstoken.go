package voxloop

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	TokenExpiryMs   = 10 * 60 * 1000
	apiKeyMinLength = 20
	apiKeyPrefix    = "sk-"
)

// ValidateAPIKeyFormat checks the shape of an API key before it is sent
// anywhere. The key itself is never logged.
func ValidateAPIKeyFormat(apiKey string) Result[ValidatedAPIKey] {
	if len(apiKey) >= apiKeyMinLength && strings.HasPrefix(apiKey, apiKeyPrefix) {
		return Ok(ValidatedAPIKey(apiKey))
	}
	return Err[ValidatedAPIKey](NewVoxError("Invalid API key format", ErrCodeAuthFailed))
}

// GetAPIKey reads the API key from the environment.
func GetAPIKey() Result[string] {
	apiKey := os.Getenv("VOXLOOP_API_KEY")
	if apiKey != "" {
		return Ok(apiKey)
	}
	return Err[string](NewVoxError("VOXLOOP_API_KEY not set", ErrCodeAuthFailed))
}

// GenerateGatewayTokenFromAPIKey mints a short-lived HS256 token for
// gateway deployments that terminate auth in front of the realtime API.
// Only a key fingerprint goes into the claims, never the full key.
func GenerateGatewayTokenFromAPIKey(apiKey ValidatedAPIKey, userID *string) Result[*GatewayToken] {
	expiresAt := time.Now().UnixMilli() + TokenExpiryMs

	payload := map[string]interface{}{
		"apiKey": string(apiKey)[:8] + "...",
		"exp":    expiresAt / 1000, // JWT expects seconds
	}
	if userID != nil {
		payload["userId"] = *userID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(payload))
	tokenString, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return Err[*GatewayToken](NewVoxError(err.Error(), ErrCodeAuthFailed))
	}

	return Ok(&GatewayToken{Token: tokenString, ExpiresAt: expiresAt})
}

// GenerateGatewayToken reads and validates the environment API key, then
// mints a gateway token from it.
func GenerateGatewayToken() Result[*GatewayToken] {
	apiKeyResult := GetAPIKey()
	if !apiKeyResult.Success {
		return Err[*GatewayToken](apiKeyResult.Error)
	}

	validatedResult := ValidateAPIKeyFormat(apiKeyResult.Data)
	if !validatedResult.Success {
		return Err[*GatewayToken](validatedResult.Error)
	}

	return GenerateGatewayTokenFromAPIKey(validatedResult.Data, nil)
}

// GenerateGatewayTokenWithUserID mints a token carrying a userId claim.
func GenerateGatewayTokenWithUserID(userID string) Result[*GatewayToken] {
	apiKeyResult := GetAPIKey()
	if !apiKeyResult.Success {
		return Err[*GatewayToken](apiKeyResult.Error)
	}

	validatedResult := ValidateAPIKeyFormat(apiKeyResult.Data)
	if !validatedResult.Success {
		return Err[*GatewayToken](validatedResult.Error)
	}

	return GenerateGatewayTokenFromAPIKey(validatedResult.Data, &userID)
}

// IsTokenExpired reports whether the token's expiry has passed.
func IsTokenExpired(token *GatewayToken) bool {
	return time.Now().UnixMilli() > token.ExpiresAt
}

// GetTokenTTL returns the remaining token lifetime in whole seconds.
func GetTokenTTL(token *GatewayToken) int {
	ttl := (token.ExpiresAt - time.Now().UnixMilli()) / 1000
	if ttl < 0 {
		return 0
	}
	return int(ttl)
}

// DecodeGatewayToken verifies a token against the signing key and returns
// its claims.
func DecodeGatewayToken(token string, apiKey string) Result[map[string]interface{}] {
	parsedToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(apiKey), nil
	})
	if err != nil {
		return Err[map[string]interface{}](NewVoxError(err.Error(), ErrCodeTokenExpired))
	}

	if claims, ok := parsedToken.Claims.(jwt.MapClaims); ok && parsedToken.Valid {
		return Ok(map[string]interface{}(claims))
	}

	return Err[map[string]interface{}](NewVoxError("Invalid token", ErrCodeTokenExpired))
}
