package middleware

import (
	"time"

	"dentalcrm/internal/common"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditRequest writes one security log line per request on routes that deal
// with credentials or tenant data: who asked, for which organization, and the outcome.
// Rejected requests have no identity and are logged with the client IP only.
func AuditRequest(event string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Taken before next so the auth middleware's user fields are not repeated.
			logger := zerolog.Ctx(c.Request().Context())
			start := time.Now()
			err := next(c)

			logEvent := logger.Info()
			if err != nil {
				logEvent = logger.Warn().Err(err)
			}

			logEvent = logEvent.
				Str("audit", event).
				Str("ip", c.RealIP()).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Dur("latency", time.Since(start))

			if identity, ok := common.IdentityFromContext(c.Request().Context()); ok {
				logEvent = logEvent.
					Str("user_id", identity.UserID.String()).
					Str("organization_id", identity.OrganizationID.String()).
					Str("role", string(identity.Role))
			}
			logEvent.Msg("audit")
			return err
		}
	}
}
