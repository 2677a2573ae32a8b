// Package auth implements bgo's optional shared-secret handshake: token
// creation, environment-variable plumbing, and constant-time comparison
// (spec.md §4.5, §6).
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// DefaultTokenLength is the number of random bytes a created token encodes,
// matching the source's token_create(length=64) default.
const DefaultTokenLength = 64

// Create generates a cryptographically random, URL-safe token of the given
// byte length before base64 encoding.
func Create(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: create token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Equal reports whether candidate matches token in constant time, so a
// failed AUTH attempt cannot be used to time-probe the configured secret.
func Equal(token, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1
}
