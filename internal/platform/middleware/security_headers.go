package middleware

import (
	"github.com/labstack/echo/v4"
)

// staticSecurityHeaders go on every response the engine produces. The API
// serves JSON to authenticated clients only, so the policy set is blunt:
// no framing, no resource loading, no caching of PHI-bearing bodies. The
// cache middleware overrides Cache-Control for the read-only catalog
// routes it manages.
var staticSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"X-XSS-Protection":        "0",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":         "no-referrer",
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
	"Cache-Control":           "no-store",
}

// hstsPolicy is one year including subdomains.
const hstsPolicy = "max-age=31536000; includeSubDomains"

// SecurityHeaders returns middleware that applies the static header set to
// every response. Strict-Transport-Security is added only when the request
// arrived over TLS, either directly or per the proxy's X-Forwarded-Proto,
// since the header carries no meaning on plaintext responses.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for name, value := range staticSecurityHeaders {
				h.Set(name, value)
			}
			if requestIsSecure(c) {
				h.Set("Strict-Transport-Security", hstsPolicy)
			}
			return next(c)
		}
	}
}

func requestIsSecure(c echo.Context) bool {
	if c.Request().TLS != nil {
		return true
	}
	return c.Request().Header.Get(echo.HeaderXForwardedProto) == "https"
}
