package middleware

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/platform/auth"
)

// BreakGlassHeader carries the free-text justification for an emergency
// privilege elevation.
const BreakGlassHeader = "X-Break-Glass"

const (
	overrideLimit  = 10
	overrideWindow = time.Hour
	sweepEvery     = 5 * time.Minute
)

type breakGlassCtxKey int

const (
	ctxKeyElevated breakGlassCtxKey = iota
	ctxKeyReason
)

// overrideLimiter admits at most limit elevations per user inside a sliding
// window. Stamps arrive in order, so pruning is a binary search for the first
// stamp still inside the window. Idle users are swept lazily on the next
// admission instead of from a background goroutine.
type overrideLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	log       map[string][]time.Time
	lastSweep time.Time
}

func newOverrideLimiter(limit int, window time.Duration) *overrideLimiter {
	return &overrideLimiter{limit: limit, window: window, log: make(map[string][]time.Time)}
}

// take admits or rejects one elevation for the user at the given instant.
func (l *overrideLimiter) take(user string, now time.Time) bool {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.log[user]
	first := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(cutoff) })
	stamps = stamps[first:]

	if len(stamps) >= l.limit {
		l.log[user] = stamps
		return false
	}
	l.log[user] = append(stamps, now)

	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweepLocked(cutoff)
		l.lastSweep = now
	}
	return true
}

// sweepLocked drops users whose newest stamp has aged out of the window.
func (l *overrideLimiter) sweepLocked(cutoff time.Time) {
	for user, stamps := range l.log {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.log, user)
		}
	}
}

// BreakGlass returns middleware implementing emergency privilege elevation.
// A request on an /api/v1/ path carrying a non-empty X-Break-Glass reason is
// granted the admin role for the duration of that request, subject to a
// per-user sliding rate limit. Every elevation is logged at WARN. The
// middleware must run after authentication so the user identity is already
// in context; installation is gated on the emergency override setting.
func BreakGlass(logger zerolog.Logger) echo.MiddlewareFunc {
	limiter := newOverrideLimiter(overrideLimit, overrideWindow)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}
			reason := strings.TrimSpace(req.Header.Get(BreakGlassHeader))
			if reason == "" {
				return next(c)
			}

			ctx := req.Context()
			userID := auth.UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "break-glass needs an authenticated user")
			}
			if !limiter.take(userID, time.Now()) {
				return echo.NewHTTPError(http.StatusTooManyRequests,
					"break-glass limit reached: at most 10 elevations per user per hour")
			}

			before := auth.RolesFromContext(ctx)
			elevated := before
			if !slices.Contains(before, "admin") {
				elevated = append(append([]string(nil), before...), "admin")
			}

			ctx = context.WithValue(ctx, ctxKeyElevated, true)
			ctx = context.WithValue(ctx, ctxKeyReason, reason)
			ctx = context.WithValue(ctx, auth.UserRolesKey, elevated)
			c.SetRequest(req.WithContext(ctx))

			logger.Warn().
				Str("user_id", userID).
				Strs("roles_before", before).
				Str("reason", reason).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Msg("break_glass_elevation")

			return next(c)
		}
	}
}

// IsBreakGlass reports whether the request carries an active elevation.
func IsBreakGlass(ctx context.Context) bool {
	elevated, _ := ctx.Value(ctxKeyElevated).(bool)
	return elevated
}

// BreakGlassReason returns the elevation justification, empty when none.
func BreakGlassReason(ctx context.Context) string {
	reason, _ := ctx.Value(ctxKeyReason).(string)
	return reason
}
