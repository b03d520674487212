package middleware

import (
	"strconv"
	"time"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/caching"
	"dentalcrm/internal/metrics"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const storeFailureLogInterval = time.Minute

type RateLimitConfig struct {
	// Scope separates counters of independently limited route groups.
	Scope  string
	Max    int
	Window time.Duration
}

// RateLimit counts requests per client IP in fixed windows. If the counter store
// is unreachable the request is let through and the failure logged, so an outage
// of Redis does not lock every user out of login. The failure is logged at most
// once per storeFailureLogInterval.
func RateLimit(store caching.CacheService, cfg RateLimitConfig, m *metrics.Metrics) echo.MiddlewareFunc {
	limit := strconv.Itoa(cfg.Max)
	failureLog := &rate.Sometimes{First: 1, Interval: storeFailureLogInterval}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.Scope + ":" + c.RealIP()
			limited, err := store.IsRateLimited(c.Request().Context(), key, cfg.Max, cfg.Window)
			if err != nil {
				failureLog.Do(func() {
					zerolog.Ctx(c.Request().Context()).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				})
				return next(c)
			}

			c.Response().Header().Set("RateLimit-Limit", limit)
			if limited {
				m.ObserveRateLimited()
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				return apperrors.ErrTooManyRequests
			}
			return next(c)
		}
	}
}
