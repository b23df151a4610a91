package auth

import (
	"strings"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	mgr := NewJWTManager(strings.Repeat("k", 32), time.Hour)

	token, jti, expires, err := mgr.GenerateSessionToken("42", RolesFor(true))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}

	claims, err := mgr.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" || claims.ID != jti {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != RoleStaff {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestParseRejectsOtherSecret(t *testing.T) {
	issuer := NewJWTManager(strings.Repeat("a", 32), time.Hour)
	other := NewJWTManager(strings.Repeat("b", 32), time.Hour)

	token, _, _, err := issuer.GenerateSessionToken("7", RolesFor(false))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := other.ParseAndValidate(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	mgr := NewJWTManager(strings.Repeat("c", 32), -time.Minute)

	token, _, _, err := mgr.GenerateSessionToken("7", RolesFor(false))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := mgr.ParseAndValidate(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("SenhaForte123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := Verify("SenhaForte123!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = Verify("outra-senha", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
	if _, err := Hash("curta"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}
