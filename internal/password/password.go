// Package password hashes and verifies user passwords.
//
// The user table stores unsalted SHA-256 hex digests by default so that
// existing users.csv files keep working. The bcrypt scheme can be enabled
// for new accounts; Verify accepts either format.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme names a hashing scheme.
type Scheme string

const (
	SchemeSHA256 Scheme = "sha256"
	SchemeBcrypt Scheme = "bcrypt"
)

// Hash returns the hex SHA-256 digest of password.
func Hash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Hasher produces stored password hashes with the configured scheme.
type Hasher struct {
	scheme Scheme
	cost   int
}

// NewHasher creates a Hasher. A zero cost selects bcrypt.DefaultCost.
func NewHasher(scheme Scheme, cost int) (*Hasher, error) {
	switch scheme {
	case "", SchemeSHA256:
		scheme = SchemeSHA256
	case SchemeBcrypt:
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
	default:
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}
	return &Hasher{scheme: scheme, cost: cost}, nil
}

// Scheme returns the scheme used for new hashes.
func (h *Hasher) Scheme() Scheme {
	return h.scheme
}

// Hash hashes password with the configured scheme.
func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme == SchemeBcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(b), nil
	}
	return Hash(password), nil
}

// Verify reports whether password matches the stored hash.
func Verify(stored, password string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	want := strings.ToLower(strings.TrimSpace(stored))
	got := Hash(password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}
