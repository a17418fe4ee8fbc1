package trustfabric

import (
	"testing"
	"time"
)

func TestSignAndVerifyToken(t *testing.T) {
	secret := "a-very-secret-signing-key"
	claims := Claims{
		UserID:    "user-1",
		Type:      TokenTypeAccess,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	token, err := SignToken(secret, claims)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	got, err := VerifyToken(secret, token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if got.UserID != claims.UserID || got.Type != claims.Type {
		t.Fatalf("round-tripped claims do not match: got %+v, want %+v", got, claims)
	}
}

func TestVerifyTokenRejectsExpiredAndTamperedTokens(t *testing.T) {
	secret := "a-very-secret-signing-key"
	expired, err := SignToken(secret, Claims{
		UserID:    "user-1",
		Type:      TokenTypeAccess,
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := VerifyToken(secret, expired); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	valid, err := SignToken(secret, Claims{
		UserID:    "user-1",
		Type:      TokenTypeAccess,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := VerifyToken(secret, valid+"tampered"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered signature, got %v", err)
	}
	if _, err := VerifyToken(secret, "not-a-token"); err != ErrMalformedToken {
		t.Fatalf("expected ErrMalformedToken for malformed input, got %v", err)
	}

	if _, err := VerifyToken("wrong-secret", valid); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}
