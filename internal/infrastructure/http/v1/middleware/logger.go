package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/pkg/logger"
)

// Logger writes one access line per request. Requests under /health are only
// logged when they fail.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		if strings.HasPrefix(c.Request.URL.Path, "/health") && status < http.StatusInternalServerError {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(started).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if c.GetHeader(HeaderIdempotencyKey) != "" {
			fields = append(fields, "idempotent_replay", c.Writer.Header().Get(HeaderIdempotentReplayed) == "true")
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "errors", errs)
		}

		entry := log.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			entry.Errorw("request", fields...)
		case status >= http.StatusBadRequest:
			entry.Warnw("request", fields...)
		default:
			entry.Infow("request", fields...)
		}
	}
}
