package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed or its signature is wrong
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// RoleAdmin may act on any tenant
const RoleAdmin = "admin"

// Claims are the JWT claims understood by the rules API.
// The custom claim names follow the identity provider's user pool schema.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	TenantID string `json:"custom:tenantId"`
	Role     string `json:"custom:userRole,omitempty"`
}

// IsAdmin reports whether the token carries the admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanAccessTenant reports whether the caller may act on tenantID
func (c *Claims) CanAccessTenant(tenantID string) bool {
	return c.IsAdmin() || (c.TenantID != "" && c.TenantID == tenantID)
}

// HMACValidator verifies HS256 tokens minted with a shared secret
type HMACValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewHMACValidator creates a validator. An empty issuer disables the issuer check.
func NewHMACValidator(secret []byte, issuer string) *HMACValidator {
	return &HMACValidator{secret: secret, issuer: issuer, leeway: 5 * time.Second}
}

// ValidateToken validates a JWT token and returns its claims
func (v *HMACValidator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.TenantID == "" && !claims.IsAdmin() {
		return nil, fmt.Errorf("%w: custom:tenantId", ErrMissingClaim)
	}
	return claims, nil
}
