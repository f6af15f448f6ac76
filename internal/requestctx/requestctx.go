// Package requestctx carries per-request values set by middleware: the
// resolved tenant, the loaded session, verified bearer claims and the
// request id. Values are added by deriving a new context, never mutated.
package requestctx

import (
	"context"

	"github.com/hireloop/ats-gateway/internal/bearer"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/internal/tenant"
)

type (
	tenantKey    struct{}
	sessionKey   struct{}
	claimsKey    struct{}
	requestIDKey struct{}
)

func WithTenant(ctx context.Context, b tenant.Binding) context.Context {
	return context.WithValue(ctx, tenantKey{}, b)
}

// Tenant returns the resolved tenant binding.
func Tenant(ctx context.Context) (tenant.Binding, bool) {
	b, ok := ctx.Value(tenantKey{}).(tenant.Binding)
	return b, ok
}

// TenantID returns the resolved tenant id or "".
func TenantID(ctx context.Context) string {
	b, _ := Tenant(ctx)
	return b.ID
}

func WithSession(ctx context.Context, s *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// Session returns the loaded session, or nil.
func Session(ctx context.Context) *sessions.Session {
	s, _ := ctx.Value(sessionKey{}).(*sessions.Session)
	return s
}

func WithClaims(ctx context.Context, c *bearer.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// Claims returns verified bearer claims, or nil.
func Claims(ctx context.Context) *bearer.Claims {
	c, _ := ctx.Value(claimsKey{}).(*bearer.Claims)
	return c
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Principal returns a stable identifier for the caller: the session user,
// else the bearer subject, else "".
func Principal(ctx context.Context) string {
	if s := Session(ctx); s.Authenticated() {
		return s.User.ID
	}
	if c := Claims(ctx); c != nil && c.Subject != "" {
		return c.Subject
	}
	return ""
}
