// Package security holds PIN hashing and credential verification. PINs are
// stored as bcrypt hashes only; plaintext never leaves the verification path.
package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the account does not exist, so a failed
// lookup costs the same as a failed PIN and does not leak account existence.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-such-account"), bcrypt.DefaultCost)

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// HashPIN validates the format and returns a bcrypt hash of the PIN.
func HashPIN(pin string) ([]byte, error) {
	if !ValidPIN(pin) {
		return nil, errors.New("pin must be exactly 4 digits")
	}
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

// VerifyPIN compares a presented PIN against a stored hash in constant time.
func VerifyPIN(hash []byte, pin string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil
}

// BurnCompare performs a comparison against a throwaway hash. Callers use it
// on unknown account ids to keep verification timing uniform.
func BurnCompare(pin string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pin))
}

// Credentials verifies the administrator secret, which is a singleton
// separate from account records.
type Credentials struct {
	adminHash []byte
}

// NewCredentials hashes the configured administrator PIN.
func NewCredentials(adminPIN string) (*Credentials, error) {
	h, err := HashPIN(adminPIN)
	if err != nil {
		return nil, err
	}
	return &Credentials{adminHash: h}, nil
}

// VerifyAdmin checks a presented PIN against the administrator hash.
func (c *Credentials) VerifyAdmin(pin string) bool {
	return VerifyPIN(c.adminHash, pin)
}
