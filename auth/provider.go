// Package auth supplies bearer credentials to the rules client and verifies
// them on the development backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInteractionRequired means no token can be obtained without user
// interaction (sign-in, consent). Callers surface it as unauthorized.
var ErrInteractionRequired = errors.New("credential acquisition requires user interaction")

// CredentialProvider yields bearer tokens for outgoing requests.
// forceRefresh asks the provider to bypass any cached token.
type CredentialProvider interface {
	AcquireToken(ctx context.Context, forceRefresh bool) (string, error)
}

// ProviderFunc adapts a function to CredentialProvider
type ProviderFunc func(ctx context.Context, forceRefresh bool) (string, error)

// AcquireToken calls f
func (f ProviderFunc) AcquireToken(ctx context.Context, forceRefresh bool) (string, error) {
	return f(ctx, forceRefresh)
}

// StaticToken is a fixed bearer token. It cannot be refreshed.
type StaticToken string

// AcquireToken returns the token, or ErrInteractionRequired when it is empty
// or a refresh is requested
func (s StaticToken) AcquireToken(_ context.Context, forceRefresh bool) (string, error) {
	if s == "" || forceRefresh {
		return "", ErrInteractionRequired
	}
	return string(s), nil
}

// HMACTokenSource mints HS256 tokens locally. It is meant for the
// development backend, which shares the secret.
type HMACTokenSource struct {
	Secret   []byte
	Issuer   string
	Subject  string
	Email    string
	TenantID string
	Role     string
	TTL      time.Duration

	// Now defaults to time.Now
	Now func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

const (
	defaultTokenTTL = time.Hour
	refreshMargin   = 30 * time.Second
)

// AcquireToken returns the cached token while it is comfortably valid and
// mints a new one otherwise
func (s *HMACTokenSource) AcquireToken(ctx context.Context, forceRefresh bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.Secret) == 0 {
		return "", fmt.Errorf("hmac token source: %w", ErrInteractionRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !forceRefresh && s.cached != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.cached, nil
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.Issuer,
			Subject:   s.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    s.Email,
		TenantID: s.TenantID,
		Role:     s.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.cached = signed
	s.expires = now.Add(ttl)
	return signed, nil
}

func (s *HMACTokenSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
