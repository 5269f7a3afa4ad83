package auth

import (
	"github.com/labstack/echo/v4"
)

// AuthSkipper reports whether a request may pass the auth middlewares
// without credentials. Only the probe and scrape endpoints qualify;
// everything under /api/v1 requires a token. Pass it as the Skipper on
// JWTConfig or DevAuthMiddleware.
func AuthSkipper(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/health/db", "/metrics":
		return true
	}
	return false
}
