package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/adjustment"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves ledger writes and history.
type MovementHandler struct {
	*BaseHandler
	service *adjustment.Service
	queries *ledger.Queries
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(base *BaseHandler, service *adjustment.Service, queries *ledger.Queries) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service, queries: queries}
}

// RegisterRoutes registers movement, adjustment and collaborator event routes.
func (h *MovementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	movements := rg.Group("/movements")
	movements.POST("", h.Record)
	movements.GET("", h.List)
	movements.GET("/:id", h.Get)
	movements.POST("/:id/reverse", h.Reverse)

	rg.POST("/adjustments", h.Adjust)

	events := rg.Group("/events")
	events.POST("/sales", h.Sale)
	events.POST("/purchase-receipts", h.PurchaseReceipt)
	events.POST("/production/consumption", h.ProductionConsumption)
	events.POST("/production/output", h.ProductionOutput)
	events.POST("/returns", h.Return)
}

// Record handles POST /movements
func (h *MovementHandler) Record(c *gin.Context) {
	var req dto.RecordMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordMovement(c.Request.Context(), req.ToInput(h.TenantID(c), h.UserID(c)))
	h.respond(c, res, err)
}

// Adjust handles POST /adjustments
func (h *MovementHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.AdjustStock(c.Request.Context(), h.TenantID(c), req.ProductID, req.LocationID, req.Delta, req.Reason, h.UserID(c))
	h.respond(c, res, err)
}

// Reverse handles POST /movements/:id/reverse
func (h *MovementHandler) Reverse(c *gin.Context) {
	movementID, ok := h.movementID(c)
	if !ok {
		return
	}
	var req dto.ReverseMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Reverse(c.Request.Context(), h.TenantID(c), movementID, req.Reason, h.UserID(c), req.AllowNegative)
	h.respond(c, res, err)
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.movementID(c)
	if !ok {
		return
	}
	m, err := h.queries.Movement(c.Request.Context(), h.TenantID(c), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromMovement(m))
}

// List handles GET /movements
func (h *MovementHandler) List(c *gin.Context) {
	filter := ledger.MovementFilter{
		TenantID: h.TenantID(c),
		Limit:    h.ParseIntQuery(c, "limit", ledger.DefaultHistoryLimit),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}

	var err error
	if filter.ProductID, err = dto.ParseOptionalID("productId", c.Query("productId")); err != nil {
		h.Error(c, err)
		return
	}
	if filter.LocationID, err = dto.ParseOptionalID("locationId", c.Query("locationId")); err != nil {
		h.Error(c, err)
		return
	}
	if filter.From, err = dto.ParseOptionalTime("from", c.Query("from")); err != nil {
		h.Error(c, err)
		return
	}
	if filter.To, err = dto.ParseOptionalTime("to", c.Query("to")); err != nil {
		h.Error(c, err)
		return
	}
	if v := c.Query("referenceType"); v != "" {
		rt := entity.ReferenceType(v)
		if !rt.IsValid() {
			h.Error(c, apperror.NewValidation("unknown reference type").WithDetail("value", v))
			return
		}
		filter.ReferenceType = &rt
	}
	if v := c.Query("referenceId"); v != "" {
		filter.ReferenceID = &v
	}
	if v := c.Query("movementType"); v != "" {
		for _, part := range strings.Split(v, ",") {
			mt := entity.MovementType(strings.TrimSpace(part))
			if !mt.IsValid() {
				h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("value", part))
				return
			}
			filter.MovementTypes = append(filter.MovementTypes, mt)
		}
	}

	items, err := h.queries.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.Normalize()
	c.JSON(http.StatusOK, dto.NewListResponse(dto.FromMovements(items), filter.Limit, filter.Offset))
}

// Sale handles POST /events/sales
func (h *MovementHandler) Sale(c *gin.Context) {
	var req dto.SaleEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordSale(c.Request.Context(), req.ToEvent(h.TenantID(c)))
	h.respond(c, res, err)
}

// PurchaseReceipt handles POST /events/purchase-receipts
func (h *MovementHandler) PurchaseReceipt(c *gin.Context) {
	var req dto.PurchaseReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordPurchaseReceipt(c.Request.Context(), req.ToReceipt(h.TenantID(c), h.UserID(c)))
	h.respond(c, res, err)
}

// ProductionConsumption handles POST /events/production/consumption
func (h *MovementHandler) ProductionConsumption(c *gin.Context) {
	var req dto.ProductionEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordProductionConsumption(c.Request.Context(), req.ToEvent(h.TenantID(c), h.UserID(c)))
	h.respond(c, res, err)
}

// ProductionOutput handles POST /events/production/output
func (h *MovementHandler) ProductionOutput(c *gin.Context) {
	var req dto.ProductionEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordProductionOutput(c.Request.Context(), req.ToEvent(h.TenantID(c), h.UserID(c)))
	h.respond(c, res, err)
}

// Return handles POST /events/returns
func (h *MovementHandler) Return(c *gin.Context) {
	var req dto.ReturnEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordReturn(c.Request.Context(), req.ToEvent(h.TenantID(c), h.UserID(c)))
	h.respond(c, res, err)
}

// respond answers 201 for a new movement and 200 for a deduplicated replay.
func (h *MovementHandler) respond(c *gin.Context, res adjustment.Result, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	if res.Replayed {
		h.OK(c, dto.FromResult(res))
		return
	}
	h.Created(c, dto.FromResult(res))
}

func (h *MovementHandler) movementID(c *gin.Context) (int64, bool) {
	v, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || v <= 0 {
		h.Error(c, apperror.NewValidation("invalid movement id").WithDetail("field", "id"))
		return 0, false
	}
	return v, true
}
