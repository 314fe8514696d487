// Package token provides opaque token generation and hashing.
// Refresh tokens are opaque random values; only their SHA-256 digest is
// used for denylist entries and refresh coalescing keys, so raw tokens
// never leave the artifact (ADR-021 §4).
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const opaqueTokenBytes = 32

// Generate returns a cryptographically random opaque token as a
// base64url-encoded string (43 characters).
func Generate() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the SHA-256 hex digest of a token. Denylist keys and
// coalescing keys carry the digest, never the token itself.
func Hash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyHash verifies a token against a known digest using constant-time
// comparison.
func VerifyHash(token, knownHash string) bool {
	candidate := Hash(token)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(knownHash)) == 1
}
