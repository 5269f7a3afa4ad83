package middleware

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// CacheConfig
// ---------------------------------------------------------------------------

// CacheConfig controls the validator and cache headers applied to catalog
// reads. Verdict endpoints (conflicts, emergency) are mounted outside the
// ETag group and never pass through here.
type CacheConfig struct {
	MaxAge       int      // Cache-Control max-age in seconds
	Public       bool     // public instead of private; reference data only
	ExcludePaths []string // exact request paths to leave untouched
}

// DefaultCacheConfig caches catalog responses for five minutes, private
// because responses are produced behind authentication.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge: 300,
		Public: false,
	}
}

func (cfg CacheConfig) cacheControl() string {
	visibility := "private"
	if cfg.Public {
		visibility = "public"
	}
	return fmt.Sprintf("%s, max-age=%d", visibility, cfg.MaxAge)
}

// ---------------------------------------------------------------------------
// Response recorder
// ---------------------------------------------------------------------------

// etagRecorder buffers the response so the validator can be computed over
// the complete body before anything reaches the client.
type etagRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *etagRecorder) WriteHeader(code int) {
	r.status = code
}

func (r *etagRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *etagRecorder) release(includeBody bool) error {
	r.ResponseWriter.WriteHeader(r.status)
	if !includeBody || r.body.Len() == 0 {
		return nil
	}
	_, err := r.ResponseWriter.Write(r.body.Bytes())
	return err
}

// ---------------------------------------------------------------------------
// ETagMiddleware
// ---------------------------------------------------------------------------

// ETagMiddleware adds an entity tag and Cache-Control to successful GET and
// HEAD responses and answers If-None-Match revalidations with 304. Error
// responses pass through without cache headers.
func ETagMiddleware(cfg CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			for _, p := range cfg.ExcludePaths {
				if req.URL.Path == p {
					return next(c)
				}
			}

			res := c.Response()
			orig := res.Writer
			rec := &etagRecorder{ResponseWriter: orig, status: http.StatusOK}
			res.Writer = rec

			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}
			if rec.status < 200 || rec.status >= 300 {
				return rec.release(true)
			}

			tag := entityTag(rec.body.Bytes())
			res.Header().Set("ETag", tag)
			res.Header().Set("Cache-Control", cfg.cacheControl())
			res.Header().Set("Vary", "Accept, Authorization")

			if revalidated(req.Header.Get("If-None-Match"), tag) {
				rec.status = http.StatusNotModified
				return rec.release(false)
			}
			return rec.release(req.Method != http.MethodHead)
		}
	}
}

// entityTag derives a strong validator from the body bytes. FNV-1a is not
// collision-proof, so the length is folded in alongside the hash.
func entityTag(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf(`"%x-%x"`, h.Sum64(), len(body))
}

// revalidated reports whether an If-None-Match header matches the current
// tag. The header may carry a comma-separated candidate list or "*", and
// clients may echo tags back with a W/ prefix.
func revalidated(ifNoneMatch, tag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == tag {
			return true
		}
	}
	return false
}
