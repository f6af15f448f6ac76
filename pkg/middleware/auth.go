package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/ats-gateway/internal/bearer"
	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/pkg/logger"
	"github.com/hireloop/ats-gateway/pkg/metrics"
)

// BearerVerifier is the minimal interface the gate depends on
type BearerVerifier interface {
	Verify(ctx context.Context, raw string) (*bearer.Claims, error)
}

type GateConfig struct {
	PublicPrefixes []string
	PublicReads    Table
	ServiceRoutes  Table
	// ClientCredentialTenant is the only tenant whose service routes accept bearers.
	ClientCredentialTenant string
	// RequireBearerOnAnonymous denies the lenient submission route without a bearer.
	RequireBearerOnAnonymous bool
	// Debug adds verification detail to 401/403 bodies.
	Debug bool
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Allow  bool
	Rule   string
	Status int
	Body   gin.H
	Claims *bearer.Claims
}

func allow(rule string) Decision { return Decision{Allow: true, Rule: rule} }

// Gate decides whether a request may reach its handler. Rules run in a
// fixed order and the first one that applies is final:
//
//  1. OPTIONS preflight
//  2. public prefixes
//  3. public read endpoints
//  4. service routes for the client-credential tenant (bearer tokens)
//  5. an authenticated session
//
// Rules 2-4 only consider canonical paths.
type Gate struct {
	cfg      GateConfig
	verifier BearerVerifier
}

func NewGate(cfg GateConfig, v BearerVerifier) *Gate {
	if cfg.PublicPrefixes == nil {
		cfg.PublicPrefixes = DefaultPublicPrefixes
	}
	if cfg.PublicReads == nil {
		cfg.PublicReads = DefaultPublicReads()
	}
	if cfg.ServiceRoutes == nil {
		cfg.ServiceRoutes = DefaultServiceRoutes(cfg.ClientCredentialTenant)
	}
	return &Gate{cfg: cfg, verifier: v}
}

func (g *Gate) Decide(ctx context.Context, r *http.Request, tenantID string, sess *sessions.Session) Decision {
	if r.Method == http.MethodOptions {
		return allow("preflight")
	}

	p := r.URL.Path
	if canonicalPath(p) {
		if hasPublicPrefix(g.cfg.PublicPrefixes, p) {
			return allow("public_prefix")
		}
		if _, ok := g.cfg.PublicReads.Match(r.Method, p); ok {
			return allow("public_read")
		}
		if tenantID != "" && tenantID == g.cfg.ClientCredentialTenant {
			if route, ok := g.cfg.ServiceRoutes.Match(r.Method, p); ok {
				if d, done := g.service(ctx, r, route); done {
					return d
				}
			}
		}
	}

	if sess.Authenticated() {
		return allow("session")
	}
	return g.deny("session", http.StatusUnauthorized, "unauthorized", "")
}

func (g *Gate) service(ctx context.Context, r *http.Request, route Route) (Decision, bool) {
	raw, present := bearerToken(r.Header.Get("Authorization"))
	if present {
		claims, err := g.verify(ctx, raw)
		if err == nil {
			d := allow("service_bearer")
			d.Claims = claims
			return d, true
		}
		if route.Policy == PolicyBearerLenient {
			logger.L().Warn().Err(err).Str("route", route.Name).Str("path", r.URL.Path).
				Msg("bearer verification failed on lenient route; allowing")
			return allow("lenient_invalid_bearer"), true
		}
		if errors.Is(err, bearer.ErrForbidden) {
			return g.deny("service_bearer", http.StatusForbidden, "forbidden", err.Error()), true
		}
		return g.deny("service_bearer", http.StatusUnauthorized, "invalid_token", err.Error()), true
	}

	if route.Policy == PolicyBearerLenient {
		if g.cfg.RequireBearerOnAnonymous {
			return g.deny("service_anonymous", http.StatusUnauthorized, "unauthorized", "bearer token required"), true
		}
		return allow("service_anonymous"), true
	}
	return Decision{}, false
}

func (g *Gate) verify(ctx context.Context, raw string) (*bearer.Claims, error) {
	if g.verifier == nil {
		return nil, &bearer.Error{Kind: bearer.ErrInvalidToken, Detail: "bearer verification not configured"}
	}
	return g.verifier.Verify(ctx, raw)
}

func (g *Gate) deny(rule string, status int, code, detail string) Decision {
	body := gin.H{"error": code}
	if g.cfg.Debug && detail != "" {
		body["detail"] = detail
	}
	return Decision{Rule: rule, Status: status, Body: body}
}

// bearerToken extracts the token from an Authorization header. Headers with
// another scheme count as absent.
func bearerToken(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// Middleware runs the gate after the tenant and session middlewares.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		d := g.Decide(ctx, c.Request, requestctx.TenantID(ctx), requestctx.Session(ctx))

		outcome := "allow"
		if !d.Allow {
			outcome = "deny"
		}
		metrics.GateDecisions.WithLabelValues(d.Rule, outcome).Inc()

		if !d.Allow {
			ev := logger.L().Debug()
			if g.cfg.Debug {
				ev = logger.L().Info()
			}
			ev.Str("rule", d.Rule).Int("status", d.Status).Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).Str("request_id", requestctx.RequestID(ctx)).Msg("gate denied")
			c.AbortWithStatusJSON(d.Status, d.Body)
			return
		}
		if d.Claims != nil {
			c.Request = c.Request.WithContext(requestctx.WithClaims(ctx, d.Claims))
		}
		c.Next()
	}
}
