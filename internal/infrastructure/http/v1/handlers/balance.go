package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// BalanceHandler serves on-hand lookups and the integrity audit.
type BalanceHandler struct {
	*BaseHandler
	queries *ledger.Queries
	auditor *ledger.Auditor
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(base *BaseHandler, queries *ledger.Queries, auditor *ledger.Auditor) *BalanceHandler {
	return &BalanceHandler{BaseHandler: base, queries: queries, auditor: auditor}
}

// RegisterRoutes registers balance routes.
func (h *BalanceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	balances := rg.Group("/balances")
	balances.GET("", h.List)
	balances.GET("/:locationId/:productId", h.Get)

	rg.GET("/audit/balances", h.Audit)
}

// List handles GET /balances. Either locationId or productId is required.
func (h *BalanceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := h.TenantID(c)

	locationID, err := dto.ParseOptionalID("locationId", c.Query("locationId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	productID, err := dto.ParseOptionalID("productId", c.Query("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var items []entity.InventoryBalance
	switch {
	case locationID != nil:
		filter := ledger.BalanceFilter{ExcludeZero: c.Query("excludeZero") == "true"}
		if productID != nil {
			filter.ProductIDs = []id.ID{*productID}
		}
		items, err = h.queries.BalancesByLocation(ctx, tenantID, *locationID, filter)
	case productID != nil:
		items, err = h.queries.BalancesByProduct(ctx, tenantID, *productID)
	default:
		err = apperror.NewValidation("locationId or productId is required")
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceListResponse{Items: dto.FromBalances(items)})
}

// Get handles GET /balances/:locationId/:productId
func (h *BalanceHandler) Get(c *gin.Context) {
	locationID, ok := h.PathID(c, "locationId")
	if !ok {
		return
	}
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}

	b, err := h.queries.Balance(c.Request.Context(), entity.BalanceKey{
		TenantID:   h.TenantID(c),
		ProductID:  productID,
		LocationID: locationID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBalance(b))
}

// Audit handles GET /audit/balances
func (h *BalanceHandler) Audit(c *gin.Context) {
	locationID, err := dto.ParseOptionalID("locationId", c.Query("locationId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	report, err := h.auditor.Verify(c.Request.Context(), h.TenantID(c), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consistent": report.Consistent(),
		"report":     report,
	})
}
