package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// refreshSecretBytes is the entropy of a raw refresh secret.
const refreshSecretBytes = 32

// NewRefreshSecret returns a new opaque refresh-token secret (base64url,
// no padding). The raw value is handed to the client and never stored.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshToken returns a SHA-256 hash of the raw refresh secret,
// hex-encoded. Only the hash is stored and used for lookup.
func HashRefreshToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual performs constant-time comparison of the provided
// raw secret's hash with the stored hash.
func RefreshTokenHashEqual(raw, storedHash string) bool {
	providedHash := HashRefreshToken(raw)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
