// Package access holds the authorization policy: who the authenticated
// principal is and what it may do to which user. It sits below both the auth
// and user packages so handlers on either side share one decision point.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrForbidden = errors.New("insufficient permissions")

// Role is a user's access level. It lives here, not in the user package, so
// the policy layer stays a leaf both sides can import.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal is the authenticated caller, reloaded from the store per request
// so role and status changes take effect immediately.
type Principal struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Role   Role
	Status bool
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Action describes what a request wants to do, for policy purposes.
type Action int

const (
	// ActionAdminOnly requires the ADMIN role regardless of target.
	ActionAdminOnly Action = iota
	// ActionSelfOrAdmin targets a specific user and is allowed for admins
	// and for the targeted user themselves.
	ActionSelfOrAdmin
)

// CanAccess is the single authorization decision point: role rule and
// ownership rule composed in one predicate. A nil principal is always denied.
func CanAccess(p *Principal, action Action, targetID uuid.UUID) bool {
	if p == nil {
		return false
	}

	switch action {
	case ActionAdminOnly:
		return p.IsAdmin()
	case ActionSelfOrAdmin:
		return p.IsAdmin() || p.ID == targetID
	default:
		return false
	}
}

// Authorize is the error-returning form of CanAccess for service-layer use.
func Authorize(p *Principal, action Action, targetID uuid.UUID) error {
	if !CanAccess(p, action, targetID) {
		return ErrForbidden
	}
	return nil
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal attaches the principal to the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the request
// context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
