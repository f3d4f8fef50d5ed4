package auth

import "context"

// Identity is the resolved caller. Credential checking never leaves this package.
type Identity struct {
	UserID   int64
	Username string
	Guest    bool
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, or nil when the request is anonymous.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
