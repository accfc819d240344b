package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/models"
	"golang.org/x/time/rate"
)

// idleAfter is how long an identity may go unseen before its bucket is dropped.
const idleAfter = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets is a set of token buckets keyed by caller identity.
type buckets struct {
	mu    sync.Mutex
	cfg   config.RateLimitConfig
	byKey map[string]*bucket
	now   func() time.Time
}

func newBuckets(cfg config.RateLimitConfig, now func() time.Time) *buckets {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &buckets{cfg: cfg, byKey: make(map[string]*bucket), now: now}
}

// reserve takes a token for identity. When none is available it returns the
// wait until the next one.
func (b *buckets) reserve(identity string) (ok bool, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	e, found := b.byKey[identity]
	if !found {
		e = &bucket{limiter: rate.NewLimiter(rate.Limit(b.cfg.RequestsPerSecond), b.cfg.Burst)}
		b.byKey[identity] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// evictIdle drops buckets not used since cutoff.
func (b *buckets) evictIdle(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.byKey {
		if e.lastSeen.Before(cutoff) {
			delete(b.byKey, id)
		}
	}
}

func (b *buckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting.
// Rejected requests get a 429 with Retry-After in whole seconds. Buckets
// idle for an hour are evicted every 5 minutes.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	b := newBuckets(cfg, time.Now)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			b.evictIdle(time.Now().Add(-idleAfter))
		}
	}()

	return func(c *gin.Context) {
		// The auth middleware sets api_key; anonymous callers share per-IP buckets.
		identity := c.ClientIP()
		if key, ok := c.Get("api_key"); ok {
			identity = "key:" + key.(string)
		}

		if ok, wait := b.reserve(identity); !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(1, secs)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, retry later",
				},
			})
			return
		}
		c.Next()
	}
}
