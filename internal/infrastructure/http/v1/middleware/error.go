package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// ErrorHandler renders the last error attached by a handler as
// {code, message, details}. Handlers that already wrote a body win.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

// writeError maps err to a response. Unknown errors become INTERNAL_ERROR and
// only the request id leaks to the client.
func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		appErr = apperror.NewInternal(err).WithDetail("request_id", c.GetString(ctxRequestID))
	}

	switch {
	case appErr.HTTPStatus >= http.StatusInternalServerError:
		if ok {
			logger.Error(ctx, "request failed", "code", appErr.Code, "cause", appErr.Err)
		}
	case appErr.Err != nil:
		logger.Warn(ctx, "request rejected", "code", appErr.Code, "cause", appErr.Err)
	}

	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	}
	failIdempotency(c, appErr.HTTPStatus, body)
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}
