package ratelimit

import (
	"context"
	"net/http"
)

// IdentityFunc returns the caller identity for r, or "" when unauthenticated.
type IdentityFunc func(r *http.Request) string

// Middleware holds one slot for the duration of each request. A denied
// acquire is not released, so bursts keep counting against the window.
// Requests without an identity pass through untouched so the handler can
// reject them.
func Middleware(l Limiter, identity IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := KeyFor(id, r)
			res := l.Acquire(r.Context(), key)
			if !res.OK {
				w.Header().Set("Retry-After", res.RetryAfter())
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			defer l.Release(context.WithoutCancel(r.Context()), key)
			next.ServeHTTP(w, r)
		})
	}
}
