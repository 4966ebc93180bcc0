package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces salted one-way password hashes with a tunable work factor.
type Hasher struct {
	cost int

	decoyOnce sync.Once
	decoy     string
}

// NewHasher returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", ErrConfiguration, cost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns a fresh salted hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.costOrDefault())
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hash), nil
}

// Verify compares password against hash in constant time. Malformed hashes
// never match.
func (h *Hasher) Verify(password, hash string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Unusable returns the hash of a random secret that is discarded immediately,
// so the account it is stored on cannot sign in with a password.
func (h *Hasher) Unusable() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return h.Hash(base64.RawStdEncoding.EncodeToString(buf))
}

// VerifyDecoy spends the same bcrypt work as Verify against a hash no
// password matches. It always reports false.
func (h *Hasher) VerifyDecoy(password string) bool {
	h.decoyOnce.Do(func() {
		h.decoy, _ = h.Unusable()
	})
	_ = bcrypt.CompareHashAndPassword([]byte(h.decoy), []byte(password))
	return false
}

func (h *Hasher) costOrDefault() int {
	if h == nil || h.cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.cost
}
