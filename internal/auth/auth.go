// Package auth establishes the identity a session runs under. Identity
// comes from a verified token at connect time and from nowhere else; the
// pipeline stamps it into identity-aware tool arguments.
package auth

import (
	"errors"
	"strings"
)

// Common authentication errors.
var (
	// ErrAuthDisabled is returned when no verification method is configured.
	ErrAuthDisabled = errors.New("authentication disabled")

	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
