package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Health serves /health and /ready. Required checks decide readiness; the
// others are only reported.
type Health struct {
	started  time.Time
	required map[string]Check
	optional map[string]Check
	extra    func(ctx context.Context) map[string]string
	timeout  time.Duration
}

func NewHealth() *Health {
	return &Health{
		started:  time.Now(),
		required: map[string]Check{},
		optional: map[string]Check{},
		timeout:  2 * time.Second,
	}
}

func (h *Health) Require(name string, p Check) *Health { h.required[name] = p; return h }
func (h *Health) Report(name string, p Check) *Health { h.optional[name] = p; return h }

// ReportMap adds a check that returns several named states at once (one per
// tenant database, for example). Any value other than "ok" fails readiness.
func (h *Health) ReportMap(f func(ctx context.Context) map[string]string) *Health {
	h.extra = f
	return h
}

func (h *Health) Register(r gin.IRoutes) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", h.Ready)
}

func (h *Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	ready := true
	deps := map[string]string{}
	for name, p := range h.required {
		if err := p(ctx); err != nil {
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = "ok"
	}
	for name, p := range h.optional {
		if err := p(ctx); err != nil {
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}
	if h.extra != nil {
		for name, state := range h.extra(ctx) {
			deps[name] = state
			if state != "ok" {
				ready = false
			}
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(h.started).String()})
}
