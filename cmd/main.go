package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/caching"
	"dentalcrm/internal/config"
	"dentalcrm/internal/handlers"
	"dentalcrm/internal/metrics"
	"dentalcrm/internal/middleware"
	"dentalcrm/internal/repositories"
	"dentalcrm/internal/services"
	"dentalcrm/pkg/database"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "dentalcrm",
		Usage:   "Dental clinic CRM API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Optional TOML config file; environment variables override it",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			seedCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("dentalcrm failed")
		cancel()
		os.Exit(1)
	}
}

// setup loads configuration and returns a context carrying the configured logger.
func setup(c *cli.Context) (context.Context, *config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	log.Logger = logger
	return logger.WithContext(c.Context), cfg, nil
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), apperrors.Wrap(apperrors.KindConfiguration, fmt.Sprintf("invalid LOG_LEVEL %q", cfg.Level), err)
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "dentalcrm").Logger(), nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Action: func(c *cli.Context) error {
			ctx, cfg, err := setup(c)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := zerolog.Ctx(ctx)

	pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	var cache caching.CacheService
	var cachePinger handlers.Pinger
	if cfg.Redis.Addr != "" {
		cache, err = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		if err := cache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis not reachable yet; rate limiting fails open until it is")
		}
		cachePinger = cache
	} else {
		logger.Info().Msg("REDIS_ADDR not set; using in-process rate limiter")
		cache = caching.NewMemoryCacheService()
	}
	defer cache.Close()

	tokens, err := services.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	userRepo := repositories.NewUserRepo(pool)
	orgRepo := repositories.NewOrganizationRepo(pool)
	authSvc := services.NewAuthService(userRepo, orgRepo, services.NewPasswordHasher(), tokens, m)
	orgSvc := services.NewOrganizationService(orgRepo, userRepo)

	e := handlers.NewRouter(handlers.RouterConfig{
		AuthService:         authSvc,
		OrganizationService: orgSvc,
		Verifier:            tokens,
		RateLimiter:         cache,
		RateLimit: middleware.RateLimitConfig{
			Scope:  "auth",
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		},
		Metrics:     m,
		Logger:      *logger,
		CORSOrigins: cfg.Server.CORSOrigins,
		BodyLimit:   cfg.Server.BodyLimit,
		DB:          pool,
		Cache:       cachePinger,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Address()).Str("version", version).Msg("server listening")
		if err := e.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			ctx, cfg, err := setup(c)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}

			pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			return database.Migrate(ctx, pool)
		},
	}
}

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create the initial organization and OWNER account from SEED_* settings",
		Action: func(c *cli.Context) error {
			ctx, cfg, err := setup(c)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := services.NewTokenService(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			authSvc := services.NewAuthService(
				repositories.NewUserRepo(pool),
				repositories.NewOrganizationRepo(pool),
				services.NewPasswordHasher(),
				tokens,
				nil,
			)
			return seed(ctx, authSvc, cfg.Seed)
		},
	}
}

// seed is idempotent: an existing account for the seed email is left as is.
func seed(ctx context.Context, authSvc services.AuthService, cfg config.SeedConfig) error {
	logger := zerolog.Ctx(ctx)
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return apperrors.Configuration("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}

	resp, err := authSvc.Register(ctx, &services.RegisterRequest{
		Email:            cfg.AdminEmail,
		Password:         cfg.AdminPassword,
		FirstName:        "Admin",
		LastName:         "User",
		OrganizationName: cfg.OrgName,
	})
	if errors.Is(err, apperrors.ErrUserExists) {
		logger.Info().Str("email", cfg.AdminEmail).Msg("seed account already exists; skipping")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("user_id", resp.User.ID.String()).
		Str("organization_id", resp.User.OrganizationID.String()).
		Msg("seed account created")
	return nil
}
