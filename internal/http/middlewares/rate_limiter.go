package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more request under key fits the current window.
// retryAfter is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a fixed-window limiter local to one process.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	now     func() time.Time
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]

	if !ok || !now.Before(b.windowEnd) {
		rl.clients[key] = &clientBucket{count: 1, windowEnd: now.Add(rl.window)}
		rl.sweep(now)
		return true, 0, nil
	}

	if b.count >= rl.limit {
		return false, b.windowEnd.Sub(now), nil
	}

	b.count++
	return true, 0, nil
}

// sweep drops expired buckets once the map grows, so one-off clients do not
// accumulate forever.
func (rl *MemoryLimiter) sweep(now time.Time) {
	if len(rl.clients) < 1024 {
		return
	}
	for k, b := range rl.clients {
		if !now.Before(b.windowEnd) {
			delete(rl.clients, k)
		}
	}
}

// RedisLimiter is the same fixed window kept in Redis, shared by every
// replica behind the load balancer.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := rl.prefix + ":" + key

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	// the first hit opens the window; a key left without a TTL (crash between
	// INCR and EXPIRE) is repaired rather than counting forever
	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := rl.rdb.Expire(ctx, k, rl.window).Err(); err != nil {
			return false, 0, err
		}
		remaining = rl.window
	}

	if incr.Val() > int64(rl.limit) {
		return false, remaining, nil
	}

	return true, 0, nil
}

// RateLimit rejects requests over the limiter's budget with 429. A limiter
// backend failure lets the request through.
func RateLimit(l Limiter, keyFn func(*gin.Context) string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		allowed, retryAfter, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		if !allowed {
			secs := int(retryAfter.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}

			c.Header("Retry-After", strconv.Itoa(secs))
			abortWith(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// KeyByIP is the key for unauthenticated endpoints.
func KeyByIP(c *gin.Context) string {
	return "ip:" + clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
