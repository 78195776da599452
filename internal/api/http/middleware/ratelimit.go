package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/resilience"
)

const (
	rateLimitWindow = time.Minute
	keyPrefix       = "address:ratelimit:"
)

var errNoRedis = errors.New("rate limiter has no redis client")

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIPPerMinute         int
	FormOpsPerMinute       int
	EnableInMemoryFallback bool
}

// counter increments the fixed-window counter for key and reports the new
// count and when the window ends
type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}

type quota struct {
	limit   int
	used    int
	resetAt time.Time
}

func (q quota) allowed() bool { return q.used <= q.limit }

func (q quota) remaining() int {
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

// RateLimiter limits requests per client IP. POSTs run a form session and
// count against a separate, usually tighter, quota.
type RateLimiter struct {
	cfg      RateLimitConfig
	primary  counter
	fallback *memoryCounter
	log      *logger.Logger
}

// NewRateLimiter counts in redis behind cb. With no redis client every
// request goes to the in-memory fallback, or is let through when the
// fallback is disabled.
func NewRateLimiter(redisClient *redis.Client, cb *resilience.CircuitBreaker, cfg RateLimitConfig, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	rl := &RateLimiter{cfg: cfg, log: log.Named("rate_limiter")}
	if redisClient != nil && cb != nil {
		rl.primary = &redisCounter{client: redisClient, cb: cb}
	}
	if cfg.EnableInMemoryFallback {
		rl.fallback = newMemoryCounter(5 * time.Minute)
	}
	return rl
}

// Stop ends the fallback's sweeper
func (rl *RateLimiter) Stop() {
	if rl.fallback != nil {
		rl.fallback.Stop()
	}
}

func (rl *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key, limit := rl.bucketFor(c)

			q, err := rl.take(ctx, key, limit)
			if err != nil {
				rl.log.WithContext(ctx).Warn("rate limiter degraded", logger.ErrorField(err))
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(q.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining()))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(q.resetAt.Unix(), 10))

			if !q.allowed() {
				retry := int64(time.Until(q.resetAt).Seconds()) + 1
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) bucketFor(c echo.Context) (string, int) {
	ip := c.RealIP()
	if c.Request().Method == http.MethodPost && rl.cfg.FormOpsPerMinute > 0 {
		return keyPrefix + "form:" + ip, rl.cfg.FormOpsPerMinute
	}
	return keyPrefix + "ip:" + ip, rl.cfg.PerIPPerMinute
}

// take consumes one request from key's quota. The returned error is
// informational: the quota is always usable, failing open when no counter
// could answer.
func (rl *RateLimiter) take(ctx context.Context, key string, limit int) (quota, error) {
	err := errNoRedis
	if rl.primary != nil {
		var used int
		var resetAt time.Time
		if used, resetAt, err = rl.primary.incr(ctx, key, rateLimitWindow); err == nil {
			return quota{limit: limit, used: used, resetAt: resetAt}, nil
		}
	}

	if rl.fallback != nil {
		used, resetAt, _ := rl.fallback.incr(ctx, key, rateLimitWindow)
		if rl.primary == nil {
			err = nil
		}
		return quota{limit: limit, used: used, resetAt: resetAt}, err
	}

	return quota{limit: limit, resetAt: time.Now().Add(rateLimitWindow)}, err
}

type redisCounter struct {
	client *redis.Client
	cb     *resilience.CircuitBreaker
}

func (r *redisCounter) incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	resetAt := time.Now().Truncate(window).Add(window)
	res, err := r.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		var incr *redis.IntCmd
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireAt(ctx, key, resetAt)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return incr.Val(), nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return int(res.(int64)), resetAt, nil
}

// memoryCounter keeps per-process windows while redis is unavailable.
// Expired windows are swept periodically.
type memoryCounter struct {
	mu       sync.Mutex
	windows  map[string]*memoryWindow
	done     chan struct{}
	stopOnce sync.Once
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

func newMemoryCounter(sweepEvery time.Duration) *memoryCounter {
	m := &memoryCounter{
		windows: make(map[string]*memoryWindow),
		done:    make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(time.Now())
			case <-m.done:
				return
			}
		}
	}()
	return m
}

func (m *memoryCounter) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *memoryCounter) incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

func (m *memoryCounter) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

func (m *memoryCounter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
