// Package auth holds the small amount of token handling this server
// needs: origin allow-listing for CORS/WebSocket upgrades, and an
// optional, non-enforcing decode of a JWT's label claim for logging.
// Authenticating and authorizing client tokens is left to the host
// application; the broadcaster core treats types.Token as an opaque
// credential string.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fenwick-labs/convene/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// GetAllowedOriginsFromEnv reads a comma-separated list of allowed
// origins from envVarName, falling back to defaultEnvs if unset.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}

// DecodeTokenLabel extracts a human-readable label from a JWT-shaped
// token string without verifying its signature. It exists purely so
// logs and metrics can show a friendly name; it must never be used for
// access control decisions. Returns "" if the token isn't a
// recognizable JWT or carries no name/sub claim.
func DecodeTokenLabel(tokenString string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ""
	}

	if name, ok := claims["name"].(string); ok && name != "" {
		return name
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
