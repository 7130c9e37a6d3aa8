package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// RateLimiter throttles token endpoint traffic per caller.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	key      KeyFunc
	now      func() time.Time
	mu       sync.Mutex
	buckets  map[string]*bucket
	lastScan time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterOption customises a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithKeyFunc overrides the default client IP bucketing.
func WithKeyFunc(fn KeyFunc) RateLimiterOption {
	return func(r *RateLimiter) { r.key = fn }
}

// NewRateLimiter creates a limiter for the requests-per-minute budget. A
// non-positive budget disables throttling and returns nil.
func NewRateLimiter(requestsPerMinute int, opts ...RateLimiterOption) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	r := &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		idle:    5 * time.Minute,
		key:     func(c *gin.Context) string { return c.ClientIP() },
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the gin middleware. A nil limiter lets everything through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !r.allow(r.key(c)) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "slow_down",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(r.lastScan) > r.idle {
		for k, other := range r.buckets {
			if now.Sub(other.lastSeen) > r.idle {
				delete(r.buckets, k)
			}
		}
		r.lastScan = now
	}
	return b.limiter.AllowN(now, 1)
}
