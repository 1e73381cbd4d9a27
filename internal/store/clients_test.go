package store

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(fullKey, "fbk_") {
		t.Errorf("key %q missing fbk_ prefix", fullKey)
	}
	if len(fullKey) != 68 {
		t.Errorf("key length = %d, want 68", len(fullKey))
	}
	if prefix != fullKey[:8] {
		t.Errorf("prefix %q != first 8 chars of key", prefix)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(fullKey)); err != nil {
		t.Errorf("hash does not verify against key: %v", err)
	}
}

func TestGenerateAPIKeyIsUnique(t *testing.T) {
	a, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	b, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if a == b {
		t.Error("two generated keys must differ")
	}
}
