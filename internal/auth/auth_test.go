package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := GenerateToken("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	uid, err := UserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != "user-1" {
		t.Fatalf("uid = %q, want user-1", uid)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	tok, err := GenerateToken("user-1", []byte("a"), time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := UserIDFromToken(tok, []byte("b")); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := GenerateToken("user-1", secret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := UserIDFromToken(tok, secret); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(h, "hunter2") {
		t.Error("correct password rejected")
	}
	if CheckPassword(h, "hunter3") {
		t.Error("wrong password accepted")
	}
}
