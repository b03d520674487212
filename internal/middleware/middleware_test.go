package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/caching"
	"dentalcrm/internal/common"
	"dentalcrm/internal/metrics"
	"dentalcrm/internal/models"
	"dentalcrm/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(e *echo.Echo, authHeader string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func newTokenService(t *testing.T) *services.TokenService {
	t.Helper()
	svc, err := services.NewTokenService("middleware-secret")
	require.NoError(t, err)
	return svc
}

func TestAuthMiddleware_StateMachine(t *testing.T) {
	e := echo.New()
	tokens := newTokenService(t)
	token, _, err := tokens.Issue(uuid.New(), uuid.New(), models.RoleDoctor)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", apperrors.ErrNoToken},
		{"wrong scheme", "Basic " + token, apperrors.ErrInvalidTokenFormat},
		{"no token part", "Bearer", apperrors.ErrInvalidTokenFormat},
		{"empty token part", "Bearer ", apperrors.ErrInvalidTokenFormat},
		{"extra parts", "Bearer " + token + " extra", apperrors.ErrInvalidTokenFormat},
		{"lowercase scheme", "bearer " + token, apperrors.ErrInvalidTokenFormat},
		{"garbage token", "Bearer not.a.jwt", apperrors.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(e, tt.header)
			called := false
			err := AuthMiddleware(tokens, nil)(func(c echo.Context) error {
				called = true
				return nil
			})(c)

			assert.ErrorIs(t, err, tt.want)
			assert.False(t, called)
		})
	}
}

func TestAuthMiddleware_AttachesIdentity(t *testing.T) {
	e := echo.New()
	tokens := newTokenService(t)
	userID, orgID := uuid.New(), uuid.New()
	token, _, err := tokens.Issue(userID, orgID, models.RoleAdmin)
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	c, _ := newContext(e, "Bearer "+token)

	var got common.Identity
	err = AuthMiddleware(tokens, m)(func(c echo.Context) error {
		var ok bool
		got, ok = common.IdentityFromContext(c.Request().Context())
		require.True(t, ok)
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, common.Identity{UserID: userID, OrganizationID: orgID, Role: models.RoleAdmin}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("verify", metrics.OutcomeSuccess)))
}

func TestAuthMiddleware_MissingSecretFailsClosed(t *testing.T) {
	e := echo.New()
	c, _ := newContext(e, "Bearer anything")

	err := AuthMiddleware(nil, nil)(okHandler)(c)
	assert.ErrorIs(t, err, apperrors.ErrMissingSecret)
	assert.Equal(t, http.StatusInternalServerError, apperrors.KindOf(err).StatusCode())

	var typedNil *services.TokenService
	err = AuthMiddleware(typedNil, nil)(okHandler)(c)
	assert.ErrorIs(t, err, apperrors.ErrMissingSecret)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := RequireRole(models.RoleOwner, models.RoleAdmin)(okHandler)

	c, _ := newContext(e, "")
	assert.ErrorIs(t, handler(c), apperrors.ErrNoToken)

	for role, allowed := range map[models.Role]bool{
		models.RoleOwner:  true,
		models.RoleAdmin:  true,
		models.RoleDoctor: false,
	} {
		c, rec := newContext(e, "")
		ctx := common.ContextWithIdentity(c.Request().Context(), common.Identity{UserID: uuid.New(), OrganizationID: uuid.New(), Role: role})
		c.SetRequest(c.Request().WithContext(ctx))

		err := handler(c)
		if allowed {
			assert.NoError(t, err, role)
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err), role)
		}
	}
}

func rateLimitedRequests(t *testing.T, store caching.CacheService, n int) []error {
	t.Helper()
	e := echo.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	handler := RateLimit(store, RateLimitConfig{Scope: "auth", Max: 3, Window: 15 * time.Minute}, m)(okHandler)

	errs := make([]error, 0, n)
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		errs = append(errs, handler(e.NewContext(req, httptest.NewRecorder())))
	}
	return errs
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := caching.NewRedisCacheService(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer store.Close()

	errs := rateLimitedRequests(t, store, 4)
	for _, err := range errs[:3] {
		assert.NoError(t, err)
	}
	assert.ErrorIs(t, errs[3], apperrors.ErrTooManyRequests)
	assert.Equal(t, http.StatusTooManyRequests, apperrors.KindOf(errs[3]).StatusCode())
}

func TestRateLimit_Memory(t *testing.T) {
	errs := rateLimitedRequests(t, caching.NewMemoryCacheService(), 5)
	for _, err := range errs[:3] {
		assert.NoError(t, err)
	}
	assert.ErrorIs(t, errs[3], apperrors.ErrTooManyRequests)
	assert.ErrorIs(t, errs[4], apperrors.ErrTooManyRequests)
}

type failingStore struct{ caching.CacheService }

func (failingStore) IsRateLimited(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_StoreFailureLetsRequestThrough(t *testing.T) {
	for _, err := range rateLimitedRequests(t, failingStore{}, 5) {
		assert.NoError(t, err)
	}
}

func TestRateLimit_StoreFailureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	handler := RateLimit(failingStore{}, RateLimitConfig{Scope: "auth", Max: 3, Window: time.Minute}, nil)(okHandler)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req = req.WithContext(logger.WithContext(req.Context()))
		require.NoError(t, handler(e.NewContext(req, httptest.NewRecorder())))
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "rate limiter unavailable"))
}

func TestRequestLoggerAndAudit(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/organizations/current", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set(echo.HeaderXRequestID, "req-1")
	c := e.NewContext(req, rec)

	identity := common.Identity{UserID: uuid.New(), OrganizationID: uuid.New(), Role: models.RoleOwner}
	handler := RequestLogger(base)(AuditRequest("organization.read")(func(c echo.Context) error {
		ctx := common.ContextWithIdentity(c.Request().Context(), identity)
		c.SetRequest(c.Request().WithContext(ctx))
		return c.NoContent(http.StatusOK)
	}))

	require.NoError(t, handler(c))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"audit":"organization.read"`)
	assert.Contains(t, out, identity.OrganizationID.String())
}
