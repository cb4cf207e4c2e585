package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdentityVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	v := NewIdentityVerifier("idp-secret", "https://idp.example")
	tok, err := v.Sign(Identity{Subject: "u1", Email: "u1@example.com", Roles: []string{RolePartner}}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Subject != "u1" || id.Email != "u1@example.com" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if !id.HasRole(RolePartner) {
		t.Error("identity should have partner role")
	}
	if id.HasRole(RoleAdmin) {
		t.Error("partner should not be admin")
	}
}

func TestIdentityVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := NewIdentityVerifier("idp-secret", "https://idp.example")

	wrongSecret, _ := NewIdentityVerifier("other-secret", "https://idp.example").
		Sign(Identity{Subject: "u1"}, time.Minute)
	wrongIssuer, _ := NewIdentityVerifier("idp-secret", "https://evil.example").
		Sign(Identity{Subject: "u1"}, time.Minute)
	expired, _ := v.Sign(Identity{Subject: "u1"}, -time.Minute)
	noSubject, _ := v.Sign(Identity{}, time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"missing subject", noSubject},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestIdentity_AdminImpliesAll(t *testing.T) {
	t.Parallel()

	id := &Identity{Roles: []string{RoleAdmin}}
	if !id.HasRole(RolePartner) {
		t.Error("admin should imply partner")
	}
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Error("empty context should have no identity")
	}
	if SubjectFromContext(ctx) != "" {
		t.Error("empty context should have no subject")
	}

	ctx = ContextWithIdentity(ctx, &Identity{Subject: "u9"})
	if SubjectFromContext(ctx) != "u9" {
		t.Errorf("SubjectFromContext = %q", SubjectFromContext(ctx))
	}
}
