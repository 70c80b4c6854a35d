package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/remap-keys/remap-backend/internal/config"
	"github.com/remap-keys/remap-backend/internal/safego"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
}

// LocalLimiter is an in-process token bucket limiter, one bucket per key.
// It is the fallback when Redis is not configured; limits are then per
// instance rather than global.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	ratePerMinute int
	burst         int
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLocalLimiter creates an in-process limiter and starts a janitor that
// drops buckets idle for more than ten minutes.
func NewLocalLimiter(ratePerMinute, burst int) *LocalLimiter {
	l := &LocalLimiter{
		buckets:       make(map[string]*bucket),
		ratePerMinute: ratePerMinute,
		burst:         burst,
	}
	safego.Go(l.cleanupLoop)
	return l
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}

	refill := now.Sub(b.lastRefill).Minutes() * float64(l.ratePerMinute)
	b.tokens = min(b.tokens+refill, float64(l.burst))
	b.lastRefill = now

	if b.tokens < 1 {
		return false, 0, nil
	}
	b.tokens--
	return true, int(b.tokens), nil
}

func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for key, b := range l.buckets {
			if b.lastRefill.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// RedisLimiter enforces a shared limit across all instances using the
// sliding-window GCRA algorithm in Redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, ratePerMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   ratePerMinute,
			Period: time.Minute,
			Burst:  burst,
		},
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	res, err := l.limiter.Allow(ctx, "ratelimit:"+key, l.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.Remaining, nil
}

// RateLimit rejects requests exceeding the configured rate with 429.
// Authenticated callers are limited per uid, anonymous ones per client IP.
// A limiter backend failure fails open so a Redis outage does not take the
// API down with it.
func RateLimit(settings config.RateLimitSettings, limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !settings.Enabled {
			c.Next()
			return
		}

		key := c.ClientIP()
		if caller := CallerFrom(c); caller != nil {
			key = "uid:" + caller.UID
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("Rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(settings.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
