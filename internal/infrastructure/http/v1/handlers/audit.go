package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/audit"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// AuditHandler serves the audit trail of transfers, reversals and reconciliations.
type AuditHandler struct {
	*BaseHandler
	reader audit.Reader
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, reader audit.Reader) *AuditHandler {
	return &AuditHandler{BaseHandler: base, reader: reader}
}

var auditedEntities = map[string]bool{
	"transfer":       true,
	"stock_movement": true,
	"reconciliation": true,
}

// RegisterRoutes registers audit trail routes.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit/history/:entityType/:entityId", h.History)
}

// History handles GET /audit/history/:entityType/:entityId
func (h *AuditHandler) History(c *gin.Context) {
	entityType := c.Param("entityType")
	if !auditedEntities[entityType] {
		h.Error(c, apperror.NewValidation("unknown entity type").WithDetail("value", entityType))
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	items, err := h.reader.History(c.Request.Context(), h.TenantID(c), entityType, c.Param("entityId"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items, limit, 0))
}
