package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReconciliationHandler handles HTTP requests for branch reconciliations.
type ReconciliationHandler struct {
	*BaseHandler
	engine *reconciliation.Engine
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, engine *reconciliation.Engine) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: base, engine: engine}
}

// RegisterRoutes registers reconciliation routes.
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	recs := rg.Group("/reconciliations")
	recs.POST("", h.Reconcile)
	recs.GET("", h.List)
	recs.GET("/:id", h.Get)
	recs.POST("/:id/review", h.Review)
}

// Reconcile handles POST /reconciliations
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var req dto.ReconcileRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.engine.Reconcile(c.Request.Context(), req.ToRequest(h.TenantID(c), h.UserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Get handles GET /reconciliations/:id
func (h *ReconciliationHandler) Get(c *gin.Context) {
	recordID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.engine.Get(ctx, h.TenantID(c), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !appctx.CanAccessLocation(ctx, rec.BranchID) {
		h.Error(c, apperror.NewNotFound("reconciliation", recordID))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List handles GET /reconciliations
func (h *ReconciliationHandler) List(c *gin.Context) {
	filter := reconciliation.ListFilter{
		TenantID: h.TenantID(c),
		Limit:    h.ParseIntQuery(c, "limit", 100),
		Offset:   h.ParseIntQuery(c, "offset", 0),
	}

	var err error
	if filter.BranchID, err = dto.ParseOptionalID("branchId", c.Query("branchId")); err != nil {
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
	if v := c.Query("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, reconciliation.Status(strings.TrimSpace(part)))
		}
	}
	switch c.Query("reviewed") {
	case "true":
		reviewed := true
		filter.Reviewed = &reviewed
	case "false":
		reviewed := false
		filter.Reviewed = &reviewed
	}

	ctx := c.Request.Context()
	if filter.BranchID != nil && !appctx.CanAccessLocation(ctx, *filter.BranchID) {
		h.Error(c, apperror.NewForbidden("branch is outside the caller's scope"))
		return
	}
	items, err := h.engine.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	visible := make([]reconciliation.Record, 0, len(items))
	for _, r := range items {
		if appctx.CanAccessLocation(ctx, r.BranchID) {
			visible = append(visible, r)
		}
	}
	c.JSON(http.StatusOK, dto.NewListResponse(visible, filter.Limit, filter.Offset))
}

// Review handles POST /reconciliations/:id/review
func (h *ReconciliationHandler) Review(c *gin.Context) {
	recordID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.engine.Review(c.Request.Context(), h.TenantID(c), recordID, h.UserID(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}
