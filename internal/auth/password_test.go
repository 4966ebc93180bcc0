package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	first, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salted hashes")
	}
	if first == "correct horse" {
		t.Fatal("hash must not equal plaintext")
	}
	for _, hash := range []string{first, second} {
		if !h.Verify("correct horse", hash) {
			t.Fatalf("expected %q to verify", hash)
		}
	}
	if h.Verify("wrong", first) {
		t.Fatal("expected mismatch to fail")
	}
}

func TestVerifyNeverMatchesMalformedHash(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	for _, hash := range []string{"", "none", "$2a$10$short"} {
		if h.Verify("none", hash) {
			t.Fatalf("malformed hash %q must not verify", hash)
		}
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	if _, err := h.Hash(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewHasherCostRange(t *testing.T) {
	if _, err := NewHasher(bcrypt.MaxCost + 1); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	h, err := NewHasher(0)
	if err != nil || h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %v (%v)", h, err)
	}
}

func TestUnusablePasswordCannotSignIn(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	hash, err := h.Unusable()
	if err != nil {
		t.Fatalf("unusable: %v", err)
	}
	for _, guess := range []string{"", "none", "password"} {
		if h.Verify(guess, hash) {
			t.Fatalf("placeholder verified against %q", guess)
		}
	}
}

func TestVerifyDecoyPaysBcryptCost(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	for _, password := range []string{"", "guess", "correct horse"} {
		if h.VerifyDecoy(password) {
			t.Fatalf("decoy matched %q", password)
		}
	}
	cost, err := bcrypt.Cost([]byte(h.decoy))
	if err != nil {
		t.Fatalf("decoy is not a bcrypt hash: %v", err)
	}
	if cost != bcrypt.MinCost+1 {
		t.Fatalf("decoy cost = %d, want %d", cost, bcrypt.MinCost+1)
	}
}

func TestKnownCapability(t *testing.T) {
	for _, c := range BuiltinCapabilities {
		if !KnownCapability(c) {
			t.Fatalf("%s should be known", c)
		}
	}
	if KnownCapability("publish") {
		t.Fatal("publish is not a capability")
	}
}
