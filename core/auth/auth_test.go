package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Error("CheckPasswordHash rejected the right password")
	}
	if CheckPasswordHash("wrong horse", hash) {
		t.Error("CheckPasswordHash accepted a wrong password")
	}
	if CheckPasswordHash("anything", "") {
		t.Error("empty hash must never match")
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for short password")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	token, err := issuer.GenerateToken(Identity{UserID: 42, Username: "mc", Guest: true})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	id, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if id.UserID != 42 || id.Username != "mc" || !id.Guest {
		t.Errorf("identity = %+v", id)
	}
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	issuer := NewIssuer("secret-a", time.Minute)
	token, err := issuer.GenerateToken(Identity{UserID: 1})
	if err != nil {
		t.Fatal(err)
	}

	other := NewIssuer("secret-b", time.Minute)
	if _, err := other.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v, want ErrInvalidToken", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("empty context must yield nil identity")
	}
	ctx := WithIdentity(context.Background(), &Identity{UserID: 7})
	if got := FromContext(ctx); got == nil || got.UserID != 7 {
		t.Errorf("FromContext = %+v", got)
	}
}
