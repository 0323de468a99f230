package auth

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// PrincipalLocalsKey is the router locals key holding the Principal
const PrincipalLocalsKey = "principal"

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// Principal is the authenticated identity attached to a request
type Principal struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role"`
}

// HasRole reports whether the principal holds one of the roles
func (p Principal) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if UserRole(p.Role) == r {
			return true
		}
	}
	return false
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the Principal in the standard context
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok
}

// GetRouterPrincipal extracts the Principal from the router locals
func GetRouterPrincipal(ctx router.Context) (Principal, bool) {
	raw := ctx.Locals(PrincipalLocalsKey)
	if raw == nil {
		return Principal{}, false
	}
	p, ok := raw.(Principal)
	return p, ok
}
