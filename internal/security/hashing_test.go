package security

import (
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	password := []byte("secret123")
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == string(password) {
		t.Fatalf("Hash returned %q", hash)
	}
	if err := h.Compare(hash, password); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !h.Verify(hash, password) {
		t.Fatal("Verify should accept the right password")
	}
}

func TestHasher_VerifyWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash([]byte("secret123"))
	if h.Verify(hash, []byte("wrong")) {
		t.Fatal("Verify with wrong password should fail")
	}
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := NewHasher(4)
	if h.Verify("not-a-bcrypt-hash", []byte("secret123")) {
		t.Fatal("Verify with malformed hash should fail")
	}
	if h.Verify("", []byte("")) {
		t.Fatal("Verify with empty hash should fail")
	}
}

func TestHasher_Cost(t *testing.T) {
	h := NewHasher(12)
	if h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	h0 := NewHasher(0)
	if h0.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h0.Cost)
	}
	if NewHasher(99).Cost != 31 {
		t.Errorf("cost above MaxCost should clamp to 31, got %d", NewHasher(99).Cost)
	}
}
