package app

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateTempPassword_LengthAndCharset(t *testing.T) {
	password, err := GenerateTempPassword(tempPasswordLength)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(password) != tempPasswordLength {
		t.Fatalf("expected %d characters, got %d", tempPasswordLength, len(password))
	}
	for _, c := range password {
		if !strings.ContainsRune(tempPasswordCharset, c) {
			t.Fatalf("unexpected character %q in password", c)
		}
	}
}

func TestGenerateTempPassword_RejectsBadLength(t *testing.T) {
	if _, err := GenerateTempPassword(0); err == nil {
		t.Fatal("expected an error for zero length")
	}
	if _, err := GenerateTempPassword(-1); err == nil {
		t.Fatal("expected an error for negative length")
	}
}

func TestHashPassword_VerifiableRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse battery")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong password")); err == nil {
		t.Fatal("expected the wrong password to fail verification")
	}
}
