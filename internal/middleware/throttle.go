// Package middleware holds the gin middleware of the gatekeeper API.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	RateLimitHeader          = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)

// ThrottleConfig bounds the request rate of one client. It protects the
// API and the remote authority from request floods; the per-day action
// quota lives in the ratelimit package.
type ThrottleConfig struct {
	Requests int
	Window   time.Duration
	// KeyFunc picks the bucket a request counts against.
	KeyFunc func(*gin.Context) string
	// SkipFunc exempts requests from throttling.
	SkipFunc func(*gin.Context) bool
}

// DefaultThrottleConfig allows 120 requests per minute per user, falling
// back to the client IP before authentication.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Requests: 120,
		Window:   time.Minute,
		KeyFunc:  ByUserOrIP,
		SkipFunc: func(c *gin.Context) bool {
			return c.Request.URL.Path == "/health"
		},
	}
}

// ByUserOrIP keys authenticated requests by user id and the rest by IP.
func ByUserOrIP(c *gin.Context) string {
	if id := UserID(c); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

var throttleScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, 0, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, limit - current, redis.call("PTTL", KEYS[1])}
`)

// Throttle is a fixed-window request counter kept in Redis, or in process
// memory when no Redis client is given.
type Throttle struct {
	config ThrottleConfig
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

type throttleDecision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

func NewThrottle(config ThrottleConfig, redisClient *redis.Client, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ByUserOrIP
	}
	return &Throttle{
		config:  config,
		redis:   redisClient,
		logger:  logger,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Middleware must run after Auth so requests are keyed by user.
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.config.SkipFunc != nil && t.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := t.config.KeyFunc(c)
		d, err := t.take(c.Request.Context(), key)
		if err != nil {
			t.logger.Error("Request throttle check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header(RateLimitHeader, strconv.Itoa(t.config.Requests))
		c.Header(RateLimitRemainingHeader, strconv.Itoa(d.remaining))
		c.Header(RateLimitResetHeader, strconv.FormatInt(d.resetAt.Unix(), 10))

		if !d.allowed {
			retryAfter := int(d.resetAt.Sub(t.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

func (t *Throttle) take(ctx context.Context, key string) (throttleDecision, error) {
	if t.redis != nil {
		return t.takeRedis(ctx, key)
	}
	return t.takeLocal(key), nil
}

func (t *Throttle) takeRedis(ctx context.Context, key string) (throttleDecision, error) {
	res, err := throttleScript.Run(ctx, t.redis, []string{throttleKey(key)},
		t.config.Requests, t.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return throttleDecision{}, err
	}
	if len(res) != 3 {
		return throttleDecision{}, fmt.Errorf("unexpected throttle script reply: %v", res)
	}
	ttl := time.Duration(max(res[2], 0)) * time.Millisecond
	return throttleDecision{
		allowed:   res[0] == 1,
		remaining: int(res[1]),
		resetAt:   t.now().Add(ttl),
	}, nil
}

func (t *Throttle) takeLocal(key string) throttleDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.windows) > 1024 {
		for k, w := range t.windows {
			if !now.Before(w.resetAt) {
				delete(t.windows, k)
			}
		}
	}

	w, ok := t.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(t.config.Window)}
		t.windows[key] = w
	}
	if w.count >= t.config.Requests {
		return throttleDecision{resetAt: w.resetAt}
	}
	w.count++
	return throttleDecision{allowed: true, remaining: t.config.Requests - w.count, resetAt: w.resetAt}
}

func throttleKey(key string) string {
	return "throttle:" + key
}
