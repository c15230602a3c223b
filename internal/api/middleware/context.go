package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/authz"
)

// contextKey is a custom type for context keys to avoid collisions.
// This prevents accidental key conflicts with other packages.
type contextKey string

// Context keys for request-scoped values. A single PrincipalKey replaces
// the teacher's separate UserIDKey/TenantIDKey/RoleKey: AuthMiddleware
// resolves role and managed-team membership once per request and injects
// the whole authz.Principal, so handlers never reconstruct it piecemeal.
const (
	PrincipalKey contextKey = "principal"
)

// GetPrincipal safely extracts the authenticated caller from context.
// Returns an error if AuthMiddleware has not run on this route.
func GetPrincipal(ctx context.Context) (authz.Principal, error) {
	val := ctx.Value(PrincipalKey)
	if val == nil {
		return authz.Principal{}, fmt.Errorf("principal not found in context")
	}
	p, ok := val.(authz.Principal)
	if !ok {
		return authz.Principal{}, fmt.Errorf("principal has wrong type: %T", val)
	}
	return p, nil
}

// GetUserID is a convenience wrapper over GetPrincipal for handlers that
// only need the caller's id.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return p.UserID, nil
}

// MustGetPrincipal extracts the principal and panics if not found.
// Use only in contexts where AuthMiddleware is guaranteed to have run.
func MustGetPrincipal(ctx context.Context) authz.Principal {
	p, err := GetPrincipal(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return p
}
