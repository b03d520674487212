package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *pgxpool.Pool and caching.CacheService.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles liveness and readiness probes
type HealthHandlers struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandlers takes a nil cache when rate limiting runs in process.
func NewHealthHandlers(db, cache Pinger) *HealthHandlers {
	return &HealthHandlers{db: db, cache: cache}
}

type ReadinessStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "OK"})
}

// ReadinessCheck reports 503 when any configured dependency is unreachable.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := &ReadinessStatus{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  map[string]string{},
	}

	check := func(name string, p Pinger) {
		if p == nil {
			status.Services[name] = "disabled"
			return
		}
		if err := p.Ping(ctx); err != nil {
			status.Services[name] = "unhealthy"
			status.Status = "degraded"
			return
		}
		status.Services[name] = "healthy"
	}
	check("database", h.db)
	check("redis", h.cache)

	code := http.StatusOK
	if status.Status != "OK" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
