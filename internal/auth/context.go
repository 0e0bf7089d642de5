package auth

import "context"

type principalContextKey struct{}

// WithPrincipal stores the session principal in ctx.
func WithPrincipal(ctx context.Context, p SessionPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the session principal attached by the
// authentication middleware. The value is a copy; mutating it has no effect
// on other readers.
func PrincipalFromContext(ctx context.Context) (SessionPrincipal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(SessionPrincipal)
	return p, ok
}
