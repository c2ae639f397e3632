// Package auth verifies the bearer tokens presented by socket handshakes and
// REST requests.
package auth

import "context"

// contextKey is a private type for context keys.
type contextKey int

const (
	identityContextKey contextKey = iota
	tokenContextKey
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string         `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Name   string         `json:"name,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// WithIdentity adds the identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFrom retrieves the identity from the context.
func IdentityFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return id
	}
	return nil
}

// WithToken adds a raw token to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves a raw token from the context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(tokenContextKey).(string); ok {
		return t
	}
	return ""
}
