// Package middleware holds the gateway's request middleware.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/metrics"
)

// visitor is one caller's token bucket.
type visitor struct {
	tokens float64
	seen   time.Time
}

// Limiter throttles callers with a token bucket per key. Routes that carry
// an :id path parameter are keyed per account, so one noisy account behind
// the chat gateway's shared IP cannot starve everyone else; all other
// routes key on the client IP.
type Limiter struct {
	scope string
	rate  float64
	burst float64

	mu       sync.Mutex
	visitors map[string]*visitor
}

const (
	// visitorTTL is how long an idle bucket survives before eviction.
	visitorTTL = 10 * time.Minute

	// sweepThreshold bounds the visitor map: once it grows past this,
	// stale entries are swept before a new one is inserted.
	sweepThreshold = 4096
)

// NewLimiter creates a limiter allowing rps sustained requests per second
// per caller, with a burst allowance of twice that. The scope names the
// route group in the rejection metric.
func NewLimiter(scope string, rps int) *Limiter {
	return &Limiter{
		scope:    scope,
		rate:     float64(rps),
		burst:    float64(2 * rps),
		visitors: make(map[string]*visitor),
	}
}

// take refills the caller's bucket up to now and spends one token. It
// reports false when the bucket is empty.
func (l *Limiter) take(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= sweepThreshold {
			l.sweep(now)
		}
		v = &visitor{tokens: l.burst, seen: now}
		l.visitors[key] = v
	}

	v.tokens += now.Sub(v.seen).Seconds() * l.rate
	if v.tokens > l.burst {
		v.tokens = l.burst
	}
	v.seen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops buckets idle longer than visitorTTL. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-visitorTTL)
	for key, v := range l.visitors {
		if v.seen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}

// key picks the bucket identity for a request: the :id path parameter when
// the route is account-scoped, the client IP otherwise.
func (l *Limiter) key(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return "acct:" + id
	}
	return "ip:" + c.ClientIP()
}

// Middleware returns the gin handler enforcing this limiter. Rejected
// requests get the standard error envelope with a 429 status.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.take(l.key(c), time.Now()) {
			metrics.RateLimitedTotal.WithLabelValues(l.scope).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded, retry shortly",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// RateLimit is shorthand for NewLimiter(scope, rps).Middleware().
func RateLimit(scope string, rps int) gin.HandlerFunc {
	return NewLimiter(scope, rps).Middleware()
}
