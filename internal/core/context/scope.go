// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"stockledger/internal/core/id"
)

// Scope is the caller's already-resolved access scope. It is produced upstream by the
// branch/tenant scoping service and consumed here as-is.
type Scope struct {
	TenantID id.ID
	UserID   string
	// LocationIDs lists the locations the caller may act on. Empty with AllLocations=false
	// means no location access.
	LocationIDs  []id.ID
	AllLocations bool
}

type scopeContextKey struct{}

// WithScope adds Scope to context.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// GetScope returns Scope from context.
func GetScope(ctx context.Context) *Scope {
	if v, ok := ctx.Value(scopeContextKey{}).(*Scope); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if s := GetScope(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// GetTenantID returns tenant ID from context or the nil UUID.
func GetTenantID(ctx context.Context) id.ID {
	if s := GetScope(ctx); s != nil {
		return s.TenantID
	}
	return id.ID{}
}

// CanAccessLocation checks the location against the resolved scope.
// Without a scope in context (worker, tests) access is not restricted.
func CanAccessLocation(ctx context.Context, locationID id.ID) bool {
	s := GetScope(ctx)
	if s == nil || s.AllLocations {
		return true
	}
	for _, l := range s.LocationIDs {
		if l == locationID {
			return true
		}
	}
	return false
}
