package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/hireloop/ats-gateway/internal/requestctx"
	"github.com/hireloop/ats-gateway/pkg/metrics"
)

// rateLimitKey prefers the authenticated principal (session user or bearer
// subject) so users behind one NAT do not share a bucket.
func rateLimitKey(c *gin.Context) string {
	if p := requestctx.Principal(c.Request.Context()); p != "" {
		return "sub:" + p
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// limiterIdle is how long an unused bucket is kept. A bucket is only dropped
// once it has refilled, so eviction never hands out extra tokens.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one bucket per key and prunes idle buckets at most once
// per idle period.
type limiterStore struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idle      time.Duration
	entries   map[string]*limiterEntry
	lastPrune time.Time
	now       func() time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	idle := limiterIdle
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &limiterStore{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		entries: map[string]*limiterEntry{},
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastPrune) >= s.idle {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) >= s.idle {
				delete(s.entries, k)
			}
		}
		s.lastPrune = now
	}
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.lim
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// rps = allowed events per second, burst = maximum tokens in bucket.
// Each call owns its limiter store.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return rateLimit(newLimiterStore(rps, burst))
}

func rateLimit(store *limiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := store.get(rateLimitKey(c))
		if !lim.Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
