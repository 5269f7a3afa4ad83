package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// oversightAnalyzePath accepts document-sized scan payloads, so it gets its
// own cap rather than the one sized for check requests.
const oversightAnalyzePath = "/api/v1/oversight/analyze"

var errBodyTooLarge = errors.New("request body exceeds configured limit")

// BodyLimit returns middleware that caps request body sizes. defaultLimit
// covers the API at large; analyzeLimit covers POST requests to the
// oversight analyze endpoint. Sizes are strings like "512K", "1M" or "2G";
// a bare number is bytes, and anything unparseable falls back to 1M.
//
// Requests announcing an oversized Content-Length are rejected with 413
// before the handler runs. Requests that stream past the cap trip the
// wrapped body reader and are answered with 413 once the handler unwinds.
func BodyLimit(defaultLimit, analyzeLimit string) echo.MiddlewareFunc {
	defaultBytes := parseByteSize(defaultLimit)
	analyzeBytes := parseByteSize(analyzeLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && req.URL.Path == oversightAnalyzePath {
				limit = analyzeBytes
			}

			if req.ContentLength > limit {
				return payloadTooLarge(c, limit)
			}

			body := newCappedBody(req.Body, limit)
			req.Body = body

			err := next(c)
			if body.tripped && !c.Response().Committed {
				return payloadTooLarge(c, limit)
			}
			return err
		}
	}
}

// cappedBody reads at most one byte past its limit so a body of exactly the
// permitted size still drains cleanly. Crossing the limit latches tripped
// and every read from then on fails.
type cappedBody struct {
	lr      io.LimitedReader
	closer  io.Closer
	tripped bool
}

func newCappedBody(rc io.ReadCloser, limit int64) *cappedBody {
	return &cappedBody{
		lr:     io.LimitedReader{R: rc, N: limit + 1},
		closer: rc,
	}
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.tripped {
		return 0, errBodyTooLarge
	}
	n, err := b.lr.Read(p)
	if b.lr.N <= 0 {
		b.tripped = true
		return n, errBodyTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.closer.Close() }

func payloadTooLarge(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"error":   "payload_too_large",
		"code":    "PAYLOAD_TOO_LARGE",
		"message": fmt.Sprintf("request body exceeds the %d byte limit", limit),
	})
}

// parseByteSize converts "512K", "1M", "2G" (optionally with a trailing B)
// or a bare byte count into bytes.
func parseByteSize(s string) int64 {
	const fallback = 1 << 20

	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "B")

	var shift uint
	switch {
	case strings.HasSuffix(v, "G"):
		shift, v = 30, v[:len(v)-1]
	case strings.HasSuffix(v, "M"):
		shift, v = 20, v[:len(v)-1]
	case strings.HasSuffix(v, "K"):
		shift, v = 10, v[:len(v)-1]
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n << shift
}
