package password

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm names accepted by NewHasher.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrUnknownHashFormat is returned when a stored hash matches no supported algorithm.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Hasher produces and checks one-way password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Config selects and tunes the hasher.
type Config struct {
	Algorithm  string       `yaml:"algorithm"`
	BcryptCost int          `yaml:"bcrypt_cost"`
	Argon2     Argon2Config `yaml:"argon2"`
}

// DefaultConfig returns bcrypt at cost 12 with argon2id parameters ready if
// the algorithm is switched.
func DefaultConfig() Config {
	return Config{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
	}
}

// NewHasher builds the configured Hasher.
func NewHasher(cfg Config) (Hasher, error) {
	switch cfg.Algorithm {
	case AlgorithmBcrypt, "":
		return NewBcrypt(cfg.BcryptCost)
	case AlgorithmArgon2id:
		return NewArgon2(cfg.Argon2)
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
}

// Verify checks password against encoded using whichever algorithm produced
// it, falling back to h when the prefix is not recognized.
func Verify(h Hasher, password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		if a, ok := h.(*Argon2); ok {
			return a.Verify(password, encoded)
		}
		return verifyArgon2(password, encoded)
	case isBcryptHash(encoded):
		return verifyBcrypt(password, encoded)
	case h != nil:
		return h.Verify(password, encoded)
	default:
		return false, ErrUnknownHashFormat
	}
}
