package middleware

import (
	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/header"
)

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers
// from the inbound request before any handler sees them.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header.RemoveHopByHop(c.Request().Header)
			return next(c)
		}
	}
}
