package authz

import (
	"context"
	"net/http"
)

type contextKey string

const (
	orgContextKey  contextKey = "authz.org_id"
	userContextKey contextKey = "authz.user"
)

// Org is what the HMAC gate attaches to a request context once a client
// signature has been verified.
type Org struct {
	OrgID   string
	OrgName string
}

// User is what the bearer gate attaches on top of Org once an access token
// has been verified.
type User struct {
	UserID string
	Role   string
}

// WithOrg returns a context carrying the HMAC-verified org.
func WithOrg(ctx context.Context, org Org) context.Context {
	return context.WithValue(ctx, orgContextKey, org)
}

// OrgFromContext extracts the org attached by the HMAC gate.
func OrgFromContext(ctx context.Context) (Org, bool) {
	org, ok := ctx.Value(orgContextKey).(Org)
	return org, ok
}

// WithUser returns a context carrying the bearer-verified user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the user attached by the bearer gate.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// RequireRole returns a middleware that 403s unless the request's bearer
// user satisfies role. Must run after both the HMAC and bearer gates.
func RequireRole(role string, onDeny http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || !Satisfies(user.Role, role) {
				onDeny.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
