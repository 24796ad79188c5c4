package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
)

// RateLimitConfig is a budget of Requests per Window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultRateLimitConfig allows 20 requests a minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Requests: 20, Window: time.Minute}
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	def := DefaultRateLimitConfig()
	if c.Requests <= 0 {
		c.Requests = def.Requests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is how long until the budget refills.
	Reset time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Name() string
}

// RedisLimiter keeps fixed-window counters in Redis so the limit is shared
// across instances.
type RedisLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored under
// "ratelimit:<prefix>:".
func NewRedisLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "default"
	}
	return &RedisLimiter{
		redis:  client,
		config: config.normalize(),
		prefix: "ratelimit:" + prefix,
	}
}

// Name implements Limiter.
func (l *RedisLimiter) Name() string { return l.prefix }

// Allow implements Limiter. The window starts with the first request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: l.config.Requests}, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		// New key, or one that lost its expiry.
		if err := l.redis.PExpire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return Decision{Allowed: true, Limit: l.config.Requests}, fmt.Errorf("redis error: %w", err)
		}
		reset = l.config.Window
	}

	count := int(incr.Val())
	remaining := l.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.config.Requests,
		Limit:     l.config.Requests,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// Reset clears the counter for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}

// MemoryLimiter is a per-process token bucket per key.
type MemoryLimiter struct {
	config  RateLimitConfig
	name    string
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewMemoryLimiter creates an in-process limiter refilling Requests tokens
// per Window with a burst of Requests.
func NewMemoryLimiter(config RateLimitConfig, name string) *MemoryLimiter {
	if name == "" {
		name = "memory"
	}
	return &MemoryLimiter{
		config:  config.normalize(),
		name:    name,
		buckets: make(map[string]*memoryBucket),
	}
}

// Name implements Limiter.
func (l *MemoryLimiter) Name() string { return l.name }

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		every := l.config.Window / time.Duration(l.config.Requests)
		b = &memoryBucket{lim: rate.NewLimiter(rate.Every(every), l.config.Requests)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()

	allowed := b.lim.AllowN(now, 1)
	remaining := int(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Limit:     l.config.Requests,
		Remaining: remaining,
		Reset:     l.config.Window / time.Duration(l.config.Requests),
	}, nil
}

// Cleanup drops buckets idle for more than two windows.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-2 * l.config.Window)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// KeyByIP keys requests by client address.
func KeyByIP(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For address, X-Real-IP, or the
// remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over budget with 429. Limiter errors are logged
// and the request proceeds. metrics may be nil.
func RateLimit(limiter Limiter, key KeyFunc, metrics *observability.Metrics, log logrus.FieldLogger) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByIP
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				log.WithError(err).WithField("limiter", limiter.Name()).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, decision)
			if !decision.Allowed {
				if metrics != nil {
					metrics.RateLimitedTotal.WithLabelValues(limiter.Name()).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.Reset)))
				httputil.WriteTooManyRequests(w, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.Reset).Unix(), 10))
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
