package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/pkg/logger"
)

// PublicError is an error whose Code may be shown to clients. The wrapped
// error is only logged.
type PublicError struct {
	Code string
	Err  error
}

func (e *PublicError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *PublicError) Unwrap() error { return e.Err }

// ErrorHandler turns errors handlers attached with c.Error into a generic
// 500 response. Only a PublicError code reaches the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		logger.L().Error().Err(err).
			Str("request_id", requestctx.RequestID(c.Request.Context())).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		if c.Writer.Written() {
			return
		}
		code := "internal_error"
		var pe *PublicError
		if errors.As(err, &pe) {
			code = pe.Code
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}
