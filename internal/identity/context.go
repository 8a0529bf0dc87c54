package identity

import (
	"context"
	"net/http"
)

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware. The second value
// is false when the request is unauthenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, false
	}
	return id, true
}

// Middleware resolves the identity once and stores it in the request
// context. Unauthenticated requests pass through; handlers decide.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id, ok := r.Resolve(req); ok {
			req = req.WithContext(WithIdentity(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
}
