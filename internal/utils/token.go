package utils

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for reset tokens
	"encoding/hex"  // hex encoding of token and digest
	"time"
)

// ResetToken is a single-use password reset token. Raw goes to the user by
// mail; only Hash is stored on the user row.
type ResetToken struct {
	Raw  string
	Hash string
	Exp  time.Time
}

// NewResetToken returns 32 random bytes hex-encoded, with its hash and expiry.
func NewResetToken(ttl time.Duration) (ResetToken, error) {
	raw, err := randomHex(32) // 32 bytes -> 64 hex chars
	if err != nil {
		return ResetToken{}, err
	}
	return ResetToken{
		Raw:  raw,
		Hash: HashToken(raw),
		Exp:  time.Now().UTC().Add(ttl),
	}, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. A leaked database
// row is then useless for redeeming the token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns n bytes of cryptographically secure random data encoded
// as hex.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
