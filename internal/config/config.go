package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"dentalcrm/internal/apperrors"
)

// Config is built once at process start and handed to every component that needs it.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Logging   LoggingConfig   `toml:"logging"`
	Seed      SeedConfig      `toml:"seed"`
}

type ServerConfig struct {
	Port            int           `toml:"port"`
	CORSOrigins     []string      `toml:"cors_origins"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	BodyLimit       string        `toml:"body_limit"`
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

// AuthConfig holds the token signing secret. The token lifetime and the
// bcrypt cost are fixed in the services package and are not configurable.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// RedisConfig is optional; an empty Addr selects the in-process rate limiter.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type RateLimitConfig struct {
	Max    int           `toml:"max"`
	Window time.Duration `toml:"window"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type SeedConfig struct {
	AdminEmail    string `toml:"admin_email"`
	AdminPassword string `toml:"admin_password"`
	OrgName       string `toml:"org_name"`
}

// Default returns the configuration used when neither a file nor the environment set a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5050,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			BodyLimit:       "1M",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		RateLimit: RateLimitConfig{
			Max:    100,
			Window: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Seed: SeedConfig{
			OrgName: "Default Org",
		},
	}
}

// Load reads defaults, then the optional TOML file at path, then environment overrides.
// It does not validate; callers pick the checks their command needs.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error

	if c.Server.Port, err = getEnvInt("PORT", c.Server.Port); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("CORS_ORIGIN"); ok {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	if c.RateLimit.Max, err = getEnvInt("RATE_LIMIT_MAX", c.RateLimit.Max); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window); err != nil {
		return err
	}

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Seed.AdminEmail = getEnv("SEED_ADMIN_EMAIL", c.Seed.AdminEmail)
	c.Seed.AdminPassword = getEnv("SEED_ADMIN_PASSWORD", c.Seed.AdminPassword)
	c.Seed.OrgName = getEnv("SEED_ORG_NAME", c.Seed.OrgName)
	return nil
}

// Validate checks what the HTTP server needs. A missing signing secret is a
// configuration error: the server must not start rather than accept tokens it cannot verify.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return apperrors.Wrap(apperrors.KindConfiguration, "JWT_SECRET is required", apperrors.ErrMissingSecret)
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperrors.Configuration(fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return apperrors.Configuration("rate limit max and window must be positive")
	}
	return nil
}

func (c *Config) ValidateDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return apperrors.Configuration("DATABASE_URL is required")
	}
	return nil
}

// Address returns the listen address for the configured port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindConfiguration, fmt.Sprintf("invalid %s %q", key, v), err)
	}
	return i, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindConfiguration, fmt.Sprintf("invalid %s %q", key, v), err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
