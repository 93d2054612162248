// Package auth verifies bearer tokens and carries the caller's identity
// through request contexts.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned by a Verifier for any token it rejects.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// UserID returns the caller's user id, or "" for an unauthenticated context.
func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}
