package auth

import (
	"testing"

	"peerchat/internal/profile"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(nil, "test-secret")
	p := &profile.Profile{ID: "7b0e8f9e-4c1d-4f3a-9b2a-111111111111", Username: "alice"}

	token, err := svc.issueToken(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, username, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id != p.ID || username != p.Username {
		t.Fatalf("claims = (%s, %s), want (%s, %s)", id, username, p.ID, p.Username)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewService(nil, "secret-a")
	verifier := NewService(nil, "secret-b")

	token, err := issuer.issueToken(&profile.Profile{ID: "x", Username: "alice"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewService(nil, "test-secret")
	if _, _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Fatal("garbage token was accepted")
	}
}
