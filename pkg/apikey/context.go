package apikey

import (
	"context"
	"net/http"
)

type principalKey struct{}

// WithPrincipal stores p on the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored on the context, or Anonymous.
func PrincipalFrom(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok && p != nil {
		return p
	}
	return Anonymous()
}

type anonymousKey struct{}

// WithAllowAnonymous marks the endpoint serving ctx as reachable without
// credentials.
func WithAllowAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

// AllowsAnonymous reports whether the endpoint serving ctx was marked with
// AllowAnonymous.
func AllowsAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

// AllowAnonymous is a middleware marking the route as reachable without
// credentials. It must run before Registry.Authenticate.
func AllowAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithAllowAnonymous(r.Context())))
	})
}
