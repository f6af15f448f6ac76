package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/internal/tenant"
)

// TenantMiddleware binds the resolved tenant and its database handle into
// the request context. It never rejects a request.
func TenantMiddleware(res *tenant.Resolver, reg *tenant.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := res.Resolve(c.Param("app"), c.FullPath(), c.Request.URL.Path)
		ctx := requestctx.WithTenant(c.Request.Context(), reg.Bind(id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
