package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client entry survives before eviction.
const staleAfter = 5 * time.Minute

// RateLimiter throttles requests per client IP using a token bucket each.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from a requests-per-minute quota. A zero or
// negative quota disables limiting and returns nil.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware. A nil receiver is a no-op so callers
// can wire the limiter unconditionally.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := time.Now()
	r.mu.Lock()

	entry, ok := r.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = entry
		r.evictStaleLocked(now)
	}
	entry.lastSeen = now
	limiter := entry.limiter

	r.mu.Unlock()
	return limiter.Allow()
}

func (r *RateLimiter) evictStaleLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > staleAfter {
			delete(r.clients, key)
		}
	}
}
