package handlers

import (
	"dentalcrm/internal/caching"
	"dentalcrm/internal/metrics"
	"dentalcrm/internal/middleware"
	"dentalcrm/internal/models"
	"dentalcrm/internal/services"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	AuthService         services.AuthService
	OrganizationService services.OrganizationService
	// Verifier is nil when no signing secret is configured; protected routes then answer 500.
	Verifier    middleware.TokenVerifier
	RateLimiter caching.CacheService
	RateLimit   middleware.RateLimitConfig
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	CORSOrigins []string
	BodyLimit   string
	DB          Pinger
	Cache       Pinger
}

func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	// Trust X-Forwarded-For only from loopback and private ranges so clients
	// cannot pick their own rate limit key.
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	e.Pre(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(middleware.RequestLogger(cfg.Logger))
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			event := zerolog.Ctx(c.Request().Context()).Info()
			if v.Error != nil {
				event = zerolog.Ctx(c.Request().Context()).Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(echoMiddleware.SecureWithConfig(echoMiddleware.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            15552000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "no-referrer",
	}))
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     corsOrigins(cfg.CORSOrigins),
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: len(cfg.CORSOrigins) > 0,
	}))
	if cfg.BodyLimit != "" {
		e.Use(echoMiddleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics.Handler()))
	}

	health := NewHealthHandlers(cfg.DB, cfg.Cache)
	e.GET("/health", health.HealthCheck)
	e.GET("/health/ready", health.ReadinessCheck)

	authHandlers := NewAuthHandlers(cfg.AuthService)
	requireAuth := middleware.AuthMiddleware(cfg.Verifier, cfg.Metrics)

	auth := e.Group("/auth", middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.Metrics))
	auth.POST("/register", authHandlers.Register, middleware.AuditRequest("auth.register"))
	auth.POST("/login", authHandlers.Login, middleware.AuditRequest("auth.login"))
	auth.GET("/me", authHandlers.Me, requireAuth)

	e.GET("/protected", authHandlers.Protected, requireAuth)

	orgHandlers := NewOrganizationHandlers(cfg.OrganizationService)
	orgs := e.Group("/organizations/current", middleware.AuditRequest("organization.read"), requireAuth)
	orgs.GET("", orgHandlers.GetCurrent)
	orgs.GET("/users", orgHandlers.ListUsers, middleware.RequireRole(models.RoleOwner, models.RoleAdmin))

	return e
}

// An empty origin list allows any origin, without credentials.
func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
