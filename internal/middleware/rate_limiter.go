package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// keyedRateLimiter keeps one token bucket per key. Idle keys expire after ttl.
type keyedRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewKeyedRateLimiter allows rps events per second per key with the given burst.
func NewKeyedRateLimiter(rps float64, burst int, ttl time.Duration) RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &keyedRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	for k, idle := range l.visitors {
		if now.Sub(idle.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// KeyFunc picks the bucket for a request.
type KeyFunc func(c echo.Context) string

// KeyByIP buckets by client address.
func KeyByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// KeyByActor buckets by the authenticated user and falls back to the address.
func KeyByActor(c echo.Context) string {
	if actor := Actor(c); actor != nil {
		return "user:" + actor.ID
	}
	return KeyByIP(c)
}

// RateLimit rejects requests over the limit with 429.
func RateLimit(name string, limiter RateLimiter, key KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(key(c)) {
				metrics.RateLimitRejected.WithLabelValues(name).Inc()
				c.Response().Header().Set("Retry-After", "1")
				return apperr.NewHTTPError(http.StatusTooManyRequests, "too many requests", "RATE_LIMITED")
			}
			metrics.RateLimitAllowed.WithLabelValues(name).Inc()
			return next(c)
		}
	}
}
