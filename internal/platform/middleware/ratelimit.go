package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinsafe/clinsafe/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// gcra is a generic cell rate limiter. Instead of counting tokens it keeps
// one theoretical arrival time (tat) per key; a request is admitted while
// the tat has not run further than the burst tolerance ahead of the clock.
type gcra struct {
	interval  time.Duration // time credited per admitted request
	tolerance time.Duration // how far the tat may lead the clock

	mu        sync.Mutex
	tat       map[string]time.Time
	lastSweep time.Time
}

func newGCRA(cfg RateLimitConfig) *gcra {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rps)
	return &gcra{
		interval:  interval,
		tolerance: time.Duration(burst-1) * interval,
		tat:       make(map[string]time.Time),
	}
}

// admit decides one request, returning the wait until the next admissible
// slot when rejected.
func (g *gcra) admit(key string, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tat := g.tat[key]
	if tat.Before(now) {
		tat = now
	}
	if lead := tat.Sub(now); lead > g.tolerance {
		return false, lead - g.tolerance
	}
	g.tat[key] = tat.Add(g.interval)

	if now.Sub(g.lastSweep) >= sweepEvery {
		g.sweepLocked(now)
		g.lastSweep = now
	}
	return true, 0
}

// sweepLocked drops keys whose tat has fallen behind the clock; those are
// back at full burst and indistinguishable from absent keys.
func (g *gcra) sweepLocked(now time.Time) {
	for key, tat := range g.tat {
		if tat.Before(now) {
			delete(g.tat, key)
		}
	}
}

// RateLimit returns a per-client rate limiting middleware. Clients are keyed
// by IP, scoped to the authenticated user when one is present. Rejected
// requests receive 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := newGCRA(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
				key = userID + ":" + key
			}

			ok, wait := limiter.admit(key, time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
