package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// OpaqueTokenSize is the number of random bytes in a one-time token.
const OpaqueTokenSize = 32

// NewOpaqueToken returns OpaqueTokenSize random bytes, hex encoded. It is
// used for email verification and password reset links.
func NewOpaqueToken() (string, error) {
	var raw [OpaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 of token. Stores keep only this digest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidOpaqueToken reports whether token has the shape NewOpaqueToken produces.
func ValidOpaqueToken(token string) bool {
	if len(token) != OpaqueTokenSize*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// EqualDigest compares two hex digests in constant time.
func EqualDigest(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random length")
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
