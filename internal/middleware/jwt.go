package middleware

import (
	"strings"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/common"
	"dentalcrm/internal/metrics"
	"dentalcrm/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// TokenVerifier is satisfied by *services.TokenService.
type TokenVerifier interface {
	Verify(token string) (*services.Claims, error)
}

// AuthMiddleware resolves the Authorization header into a common.Identity on the
// request context. A nil verifier means the server has no signing secret, and
// every request is refused with a configuration error instead of passing through.
func AuthMiddleware(verifier TokenVerifier, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return apperrors.ErrMissingSecret
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				m.ObserveAuth("verify", metrics.OutcomeRejected)
				return apperrors.ErrNoToken
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				m.ObserveAuth("verify", metrics.OutcomeRejected)
				return apperrors.ErrInvalidTokenFormat
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				if apperrors.KindOf(err) == apperrors.KindConfiguration {
					return err
				}
				m.ObserveAuth("verify", metrics.OutcomeRejected)
				zerolog.Ctx(c.Request().Context()).Debug().Err(err).Msg("token rejected")
				return apperrors.ErrInvalidToken
			}
			m.ObserveAuth("verify", metrics.OutcomeSuccess)

			identity := claims.Identity()
			ctx := common.ContextWithIdentity(c.Request().Context(), identity)
			logger := zerolog.Ctx(ctx).With().
				Str("user_id", identity.UserID.String()).
				Str("organization_id", identity.OrganizationID.String()).
				Logger()
			c.SetRequest(c.Request().WithContext(logger.WithContext(ctx)))

			return next(c)
		}
	}
}
