package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role names carried in identity tokens.
const (
	RolePartner = "partner"
	RoleAdmin   = "admin"
)

var (
	// ErrInvalidIdentity indicates the identity token failed verification.
	ErrInvalidIdentity = errors.New("invalid identity token")
)

// Identity is the authenticated end user handed to the core by the identity provider.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// HasRole checks if the identity has a role. Admin implies every role.
func (i *Identity) HasRole(role string) bool {
	if slices.Contains(i.Roles, RoleAdmin) {
		return true
	}
	return slices.Contains(i.Roles, role)
}

// IdentityClaims describes the identity token payload.
type IdentityClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IdentityVerifier validates HS256 identity tokens issued by the identity provider.
type IdentityVerifier struct {
	secret []byte
	issuer string
}

// NewIdentityVerifier creates a verifier. An empty issuer disables the iss check.
func NewIdentityVerifier(secret, issuer string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a token and returns the identity it carries.
func (v *IdentityVerifier) Verify(tokenStr string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	claims, ok := parsed.Claims.(*IdentityClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidIdentity
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIdentity)
	}

	return &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   claims.Roles,
	}, nil
}

// Sign issues an identity token. Used by tooling and tests that stand in for
// the identity provider.
func (v *IdentityVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &IdentityClaims{
		Email: id.Email,
		Roles: id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
