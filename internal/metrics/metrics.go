// Package metrics holds the Prometheus collectors for the HTTP surface and the auth flows.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"dentalcrm/internal/apperrors"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dentalcrm"

// Auth outcomes recorded by ObserveAuth.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	HTTPInFlight        prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthAttemptsTotal   *prometheus.CounterVec
	RateLimitedTotal    prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg.
// Pass a fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		AuthAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Registration, login and token verification attempts by outcome.",
		}, []string{"operation", "outcome"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HTTPInFlight,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.RateLimitedTotal,
	)
	return m
}

// ObserveAuth is safe to call on a nil *Metrics.
func (m *Metrics) ObserveAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// Middleware records latency and status per route template, not per raw path,
// so ids in URLs do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				var ae *apperrors.Error
				switch {
				case errors.As(err, &he):
					status = he.Code
				case errors.As(err, &ae):
					status = ae.Kind.StatusCode()
				default:
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			code := strconv.Itoa(status)
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, path, code).Observe(time.Since(start).Seconds())
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, code).Inc()
			return err
		}
	}
}

// Handler serves the exposition format for the registry passed to NewMetrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
