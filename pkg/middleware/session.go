package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/pkg/logger"
)

// SessionMiddleware loads the session named by the signed cookie. Missing,
// forged or expired cookies leave the request without a session.
func SessionMiddleware(svc *sessions.Service, cookie sessions.CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := cookie.Read(c.Request)
		if !ok {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		sess, err := svc.Load(ctx, id)
		if err != nil {
			logger.L().Warn().Err(err).Msg("session load failed")
		}
		if sess != nil {
			c.Request = c.Request.WithContext(requestctx.WithSession(ctx, sess))
		}
		c.Next()
	}
}
