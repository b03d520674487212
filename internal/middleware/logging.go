package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger puts a child of base carrying the request id on the request
// context, where services pick it up with zerolog.Ctx. Run it after echo's RequestID.
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			logger := base.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Logger()
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context())))
			return next(c)
		}
	}
}
