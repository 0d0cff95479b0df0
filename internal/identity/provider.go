// Package identity resolves the current session's user from an external
// identity provider.
package identity

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain"
)

// ErrUnauthenticated means no usable session token was presented.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider returns the identity behind the current request.
type Provider interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}

type tokenCtxKey struct{}

// WithToken stores the caller's session token on ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, strings.TrimSpace(token))
}

// TokenFromContext returns the session token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenCtxKey{}).(string)
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
