package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/vactrail/backend/internal/apperr"
)

// opaqueEntropyBytes yields 256 bits of entropy once base64-encoded, as
// required for refresh, invite, and password-reset tokens (spec.md §4.2).
const opaqueEntropyBytes = 32

// GenerateOpaque returns a fresh, URL-safe-encoded opaque token. The raw
// value is returned to the caller exactly once — persist only its Hash.
func GenerateOpaque() (string, error) {
	buf := make([]byte, opaqueEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "generating opaque token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the SHA-256 hash (hex-encoded) of a raw opaque token. Only
// the hash is ever persisted — lookups are by hash, never by raw value
// (spec.md I5).
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SecureEqual performs a constant-time comparison, used where a raw token
// must be compared to an in-memory expected value rather than a hash
// lookup (e.g. double-submit CSRF tokens at the HTTP layer).
func SecureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
