package shared

import "context"

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	UserID int64
	Admin  bool
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}

// RequireIdentity returns the caller or ErrUnauthenticated.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// RequireAdmin returns the caller when it carries the admin flag, else ErrPermission.
func RequireAdmin(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || !id.Admin {
		return Identity{}, ErrPermission
	}
	return id, nil
}
