// Package handlers binds the ledger services to gin routes.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// BaseHandler is embedded by every resource handler. Errors are attached to
// the gin context and rendered by middleware.ErrorHandler; successful bodies
// are also handed to the idempotency store.
type BaseHandler struct{}

func NewBaseHandler() *BaseHandler { return &BaseHandler{} }

// BindJSON decodes and validates the body. On failure the response is already
// queued and the caller should return.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	appErr := apperror.NewValidation("invalid request body")
	if fields := middleware.ValidationDetails(err); fields != nil {
		appErr.WithDetail("fields", fields)
	} else {
		appErr.WithDetail("error", err.Error())
	}
	h.Error(c, appErr)
	return false
}

func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery falls back to def for missing, malformed or negative values.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	v, err := dto.ParseID(name, c.Param(name))
	if err != nil {
		h.Error(c, err)
		return id.ID{}, false
	}
	return v, true
}

func (h *BaseHandler) TenantID(c *gin.Context) id.ID {
	return appctx.GetTenantID(c.Request.Context())
}

func (h *BaseHandler) UserID(c *gin.Context) string {
	return appctx.GetUserID(c.Request.Context())
}

func (h *BaseHandler) Created(c *gin.Context, data any) { h.respond(c, http.StatusCreated, data) }

func (h *BaseHandler) OK(c *gin.Context, data any) { h.respond(c, http.StatusOK, data) }

func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	middleware.CompleteIdempotency(c, status, "application/json", data)
	c.JSON(status, data)
}
