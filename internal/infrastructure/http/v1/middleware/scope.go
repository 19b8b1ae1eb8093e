package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

const (
	HeaderTenantID    = "X-Tenant-ID"
	HeaderUserID      = "X-User-ID"
	HeaderLocationIDs = "X-Location-IDs"

	// AllLocations in X-Location-IDs grants tenant-wide access.
	AllLocations = "*"
)

// Scope reads the caller scope resolved by the gateway and puts it on the request
// context. A missing or malformed tenant rejects the request; a missing location list
// grants no location access.
func Scope() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantStr := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		if tenantStr == "" {
			_ = c.Error(apperror.NewValidation("tenant header is required").WithDetail("header", HeaderTenantID))
			c.Abort()
			return
		}
		tenantID, err := id.Parse(tenantStr)
		if err != nil || id.IsNil(tenantID) {
			_ = c.Error(apperror.NewValidation("invalid tenant id").WithDetail("header", HeaderTenantID))
			c.Abort()
			return
		}

		scope := &appctx.Scope{
			TenantID: tenantID,
			UserID:   strings.TrimSpace(c.GetHeader(HeaderUserID)),
		}

		raw := strings.TrimSpace(c.GetHeader(HeaderLocationIDs))
		if raw == AllLocations {
			scope.AllLocations = true
		} else if raw != "" {
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				loc, err := id.Parse(part)
				if err != nil {
					_ = c.Error(apperror.NewValidation("invalid location id").
						WithDetail("header", HeaderLocationIDs).
						WithDetail("value", part))
					c.Abort()
					return
				}
				scope.LocationIDs = append(scope.LocationIDs, loc)
			}
		}

		c.Request = c.Request.WithContext(appctx.WithScope(c.Request.Context(), scope))
		c.Set("tenant_id", tenantID.String())
		if scope.UserID != "" {
			c.Set("user_id", scope.UserID)
		}
		c.Next()
	}
}
