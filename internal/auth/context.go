package auth

import "context"

// Principal is an authenticated user with the resolved effective permission
// set and the session that authenticated the request.
type Principal struct {
	User        *User
	Session     Session
	RoleName    string
	Permissions map[string]bool
}

// HasPermission reports whether the principal holds the named capability.
func (p Principal) HasPermission(name string) bool {
	return p.Permissions[name]
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
