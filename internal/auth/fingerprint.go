package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short SHA256 digest of a token for cache keys and logs.
// It is not a storage format.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:16]) // 32 hex chars
}
