package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/google/uuid"
)

// NewRefreshToken returns a fresh opaque refresh credential: a random (v4)
// UUID in canonical 36 character form. It carries 122 random bits, so
// collisions are not checked for.
//
// uuid.NewString only panics if the system entropy source fails, which
// leaves nothing sensible to recover into.
func NewRefreshToken() string {
	return uuid.NewString()
}

// FingerprintToken returns a short SHA-256 fingerprint of a credential. It is
// what ends up in logs so raw tokens never do.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// ConstantTimeEqual compares two secrets without leaking where they differ.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewTrialKey returns prefix followed by a random (v4) UUID.
func NewTrialKey(prefix string) string {
	return prefix + uuid.NewString()
}
