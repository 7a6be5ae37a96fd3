// Package auth resolves the calling user from a request.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rzbill/pulse/internal/membership"
	"github.com/rzbill/pulse/pkg/log"
)

// CookieName is the cookie checked when no Authorization header is sent.
// Browsers cannot set headers on EventSource or WebSocket requests.
const CookieName = "pulse_token"

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	// OrganizationID is the caller's default organization. It may be empty.
	OrganizationID string
}

// TokenResolver looks up bearer tokens.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (membership.Token, bool, error)
}

// Resolver turns request credentials into an Identity.
type Resolver struct {
	tokens TokenResolver
	logger log.Logger
}

// NewResolver returns a Resolver backed by tokens.
func NewResolver(tokens TokenResolver, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{tokens: tokens, logger: logger.With(log.Domain("auth"))}
}

// Resolve returns the caller, or false when the request carries no valid
// credentials. Store errors are logged and treated as anonymous.
func (r *Resolver) Resolve(req *http.Request) (Identity, bool) {
	token := Credentials(req)
	if token == "" {
		return Identity{}, false
	}
	t, ok, err := r.tokens.ResolveToken(req.Context(), token)
	if err != nil {
		r.logger.Warn("token lookup failed", log.Operation("resolve"), log.Err(err))
		return Identity{}, false
	}
	if !ok || t.UserID == "" {
		return Identity{}, false
	}
	return Identity{UserID: t.UserID, OrganizationID: t.OrganizationID}, true
}

// Credentials extracts the raw token from the Authorization header or, failing
// that, the pulse_token cookie.
func Credentials(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := req.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware resolves the caller once and stores it in the request context.
// Anonymous requests are passed through; handlers decide whether to reject.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id, ok := r.Resolve(req); ok {
			ctx := WithIdentity(req.Context(), id)
			ctx = log.ContextWith(ctx, log.OrgKey, id.OrganizationID)
			req = req.WithContext(ctx)
		}
		next.ServeHTTP(w, req)
	})
}

// UserID returns the identity's user id from the request context, or "".
func UserID(req *http.Request) string {
	id, _ := FromContext(req.Context())
	return id.UserID
}
