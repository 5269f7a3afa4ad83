package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout installs a deadline on each request's context. Handlers run
// synchronously on the request goroutine; once the deadline passes, the
// context-aware work underneath them (pool queries, catalog lookups) unwinds
// with DeadlineExceeded, which is translated into a 504 with a structured
// body here. A handler that needs longer for a specific operation derives
// its own context.
//
// A handler that ignores its context keeps running until the server's write
// timeout cuts the connection; nothing is abandoned on a background
// goroutine mid-write.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if c.Response().Committed {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error":   "request_timeout",
				"code":    "REQUEST_TIMEOUT",
				"message": "request processing exceeded the allowed time limit",
			})
		}
	}
}
