package middleware

import (
	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/common"
	"dentalcrm/internal/models"

	"github.com/labstack/echo/v4"
)

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := common.IdentityFromContext(c.Request().Context())
			if !ok {
				return apperrors.ErrNoToken
			}
			if !identity.HasRole(roles...) {
				return apperrors.Forbidden("Insufficient permissions")
			}
			return next(c)
		}
	}
}
