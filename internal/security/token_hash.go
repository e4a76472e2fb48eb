package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashValue returns a SHA-256 hash of the value, hex-encoded. Used as the
// lookup key for stored tokens and for device fingerprints; the raw value is
// never used for lookups or persisted.
func HashValue(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

// HashEqual performs constant-time comparison of the provided value's hash with
// the stored hash. Returns true only if they match.
func HashEqual(providedValue, storedHash string) bool {
	providedHash := HashValue(providedValue)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
