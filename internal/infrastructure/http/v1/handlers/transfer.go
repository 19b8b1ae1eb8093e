package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// TransferHandler handles HTTP requests for inter-location transfers.
type TransferHandler struct {
	*BaseHandler
	service *transfer.Service
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers transfer routes.
func (h *TransferHandler) RegisterRoutes(rg *gin.RouterGroup) {
	transfers := rg.Group("/transfers")
	transfers.POST("", h.Create)
	transfers.GET("", h.List)
	transfers.GET("/:id", h.Get)
	transfers.POST("/:id/approve", h.Approve)
	transfers.POST("/:id/reject", h.Reject)
	transfers.POST("/:id/ship", h.Ship)
	transfers.POST("/:id/receive", h.Receive)
	transfers.POST("/:id/complete", h.Complete)
	transfers.POST("/:id/cancel", h.Cancel)
}

// Create handles POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req dto.CreateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := h.service.Create(c.Request.Context(), req.ToInput(h.TenantID(c), h.UserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, t)
}

// Get handles GET /transfers/:id
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	t, err := h.service.Get(ctx, h.TenantID(c), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !appctx.CanAccessLocation(ctx, t.FromLocationID) && !appctx.CanAccessLocation(ctx, t.ToLocationID) {
		h.Error(c, apperror.NewNotFound("transfer", transferID))
		return
	}
	c.JSON(http.StatusOK, t)
}

// List handles GET /transfers
func (h *TransferHandler) List(c *gin.Context) {
	filter := transfer.ListFilter{
		TenantID: h.TenantID(c),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}
	locationID, err := dto.ParseOptionalID("locationId", c.Query("locationId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.LocationID = locationID
	if v := c.Query("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, transfer.Status(strings.TrimSpace(part)))
		}
	}

	ctx := c.Request.Context()
	items, err := h.service.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	visible := make([]transfer.Transfer, 0, len(items))
	for _, t := range items {
		if appctx.CanAccessLocation(ctx, t.FromLocationID) || appctx.CanAccessLocation(ctx, t.ToLocationID) {
			visible = append(visible, t)
		}
	}
	c.JSON(http.StatusOK, dto.NewListResponse(visible, filter.Limit, filter.Offset))
}

// Approve handles POST /transfers/:id/approve
func (h *TransferHandler) Approve(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.Approve(c.Request.Context(), h.TenantID(c), transferID, h.UserID(c))
	h.respond(c, t, err)
}

// Reject handles POST /transfers/:id/reject
func (h *TransferHandler) Reject(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	t, err := h.service.Reject(c.Request.Context(), h.TenantID(c), transferID, h.UserID(c), req.Reason)
	h.respond(c, t, err)
}

// Ship handles POST /transfers/:id/ship
func (h *TransferHandler) Ship(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ShipTransferRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	t, err := h.service.Ship(c.Request.Context(), h.TenantID(c), transferID, req.ToInput(h.UserID(c)))
	h.respond(c, t, err)
}

// Receive handles POST /transfers/:id/receive
func (h *TransferHandler) Receive(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveTransferRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	t, err := h.service.Receive(c.Request.Context(), h.TenantID(c), transferID, req.ToInput(h.UserID(c)))
	h.respond(c, t, err)
}

// Complete handles POST /transfers/:id/complete
func (h *TransferHandler) Complete(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.Complete(c.Request.Context(), h.TenantID(c), transferID, h.UserID(c))
	h.respond(c, t, err)
}

// Cancel handles POST /transfers/:id/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	t, err := h.service.Cancel(c.Request.Context(), h.TenantID(c), transferID, h.UserID(c), req.Reason)
	h.respond(c, t, err)
}

func (h *TransferHandler) respond(c *gin.Context, t *transfer.Transfer, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// bindOptionalJSON accepts an empty body for transitions whose payload is optional.
func (h *TransferHandler) bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.BindJSON(c, obj)
}
