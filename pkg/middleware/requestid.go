package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns a request id (reusing a sane inbound one) and logs
// each request once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(requestctx.WithRequestID(c.Request.Context(), id))

		c.Next()

		ctx := c.Request.Context()
		ev := logger.L().Info()
		if c.Writer.Status() >= 500 {
			ev = logger.L().Error()
		}
		ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("tenant", requestctx.TenantID(ctx)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
