package token

import (
	"reflect"
	"testing"
	"time"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", "auth.test", "marketplace", 30)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestNewSignerConfigErrors(t *testing.T) {
	tests := []struct {
		name                     string
		secret, issuer, audience string
		minutes                  int
	}{
		{"missing secret", "", "iss", "aud", 30},
		{"missing issuer", "s", "", "aud", 30},
		{"missing audience", "s", "iss", "", 30},
		{"zero ttl", "s", "iss", "aud", 0},
		{"negative ttl", "s", "iss", "aud", -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSigner(tt.secret, tt.issuer, tt.audience, tt.minutes); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestIssueRoundTrip(t *testing.T) {
	s := newTestSigner(t)

	roles := []string{"Admin", "Customer"}
	signed, exp, err := s.Issue("user-1", "a@b.com", "ann", roles, Profile{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry %v should be in the future", exp)
	}

	claims, err := s.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", claims.Email)
	}
	if claims.Name != "ann" {
		t.Errorf("name = %q, want ann", claims.Name)
	}
	if !reflect.DeepEqual(claims.Roles, roles) {
		t.Errorf("roles = %v, want %v", claims.Roles, roles)
	}
	if claims.DisplayName != "" || claims.Picture != "" {
		t.Errorf("expected no profile claims, got %q/%q", claims.DisplayName, claims.Picture)
	}
}

func TestIssueProfileClaims(t *testing.T) {
	s := newTestSigner(t)

	signed, _, err := s.Issue("user-1", "a@b.com", "ann", []string{"Customer"}, Profile{
		DisplayName: "Ann",
		Picture:     "https://example.com/p.png",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.DisplayName != "Ann" {
		t.Errorf("display_name = %q, want Ann", claims.DisplayName)
	}
	if claims.Picture != "https://example.com/p.png" {
		t.Errorf("picture = %q", claims.Picture)
	}
}

func TestIssueFreshTokenID(t *testing.T) {
	s := newTestSigner(t)

	first, _, err := s.Issue("user-1", "a@b.com", "ann", nil, Profile{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, _, err := s.Issue("user-1", "a@b.com", "ann", nil, Profile{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	c1, err := s.Verify(first)
	if err != nil {
		t.Fatalf("verify first: %v", err)
	}
	c2, err := s.Verify(second)
	if err != nil {
		t.Fatalf("verify second: %v", err)
	}
	if c1.ID == "" || c1.ID == c2.ID {
		t.Fatalf("expected distinct non-empty jti values, got %q and %q", c1.ID, c2.ID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewSigner("other-secret", "auth.test", "marketplace", 30)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	signed, _, err := s.Issue("user-1", "a@b.com", "ann", []string{"Customer"}, Profile{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Verify(signed); err == nil {
		t.Fatal("expected verification with a different secret to fail")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewSigner("test-secret", "auth.test", "other-audience", 30)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	signed, _, err := s.Issue("user-1", "a@b.com", "ann", nil, Profile{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Verify(signed); err == nil {
		t.Fatal("expected verification with a different audience to fail")
	}
}
