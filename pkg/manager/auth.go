package manager

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/commyio/commy/pkg/errs"
)

// AuthVerdict is the outcome of AuthProvider.Validate.
type AuthVerdict int

const (
	AuthAccepted AuthVerdict = iota
	AuthRejected
)

// AuthProvider is the plug-in interface the Manager consumes for token
// validation. Empty tokens are rejected without invoking the provider;
// a case-insensitive "Bearer " prefix is stripped before the provider sees
// the token.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (AuthVerdict, error)
}

// ValidateToken applies the Bearer-prefix stripping and empty-token
// short-circuit, then delegates to provider.
func ValidateToken(ctx context.Context, provider AuthProvider, token string) error {
	if token == "" {
		return errs.NewPermissionDenied("request_file.auth", "")
	}

	trimmed := token
	if len(trimmed) >= 7 && strings.EqualFold(trimmed[:7], "bearer ") {
		trimmed = trimmed[7:]
	}

	verdict, err := provider.Validate(ctx, trimmed)
	if err != nil {
		return errs.NewAuthenticationFailed("request_file.auth", err.Error())
	}
	if verdict == AuthRejected {
		return errs.NewPermissionDenied("request_file.auth", "")
	}
	return nil
}

// MockAuthProvider returns a pre-programmed verdict for every call, for
// tests and for local development when no auth secret is configured.
type MockAuthProvider struct {
	Verdict AuthVerdict
	Err     error
}

func (m *MockAuthProvider) Validate(ctx context.Context, token string) (AuthVerdict, error) {
	return m.Verdict, m.Err
}

// JWTAuthProvider validates bearer tokens as signed JWTs, the default
// production AuthProvider.
type JWTAuthProvider struct {
	secret []byte
}

// NewJWTAuthProvider creates a provider verifying HMAC-signed tokens with
// the given secret.
func NewJWTAuthProvider(secret []byte) *JWTAuthProvider {
	return &JWTAuthProvider{secret: secret}
}

func (p *JWTAuthProvider) Validate(ctx context.Context, token string) (AuthVerdict, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		return AuthRejected, err
	}
	return AuthAccepted, nil
}
