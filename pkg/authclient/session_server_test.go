package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/caching"
	"dentalcrm/internal/handlers"
	"dentalcrm/internal/middleware"
	"dentalcrm/internal/models"
	"dentalcrm/internal/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userLookup serves /auth/me for a single known user.
type userLookup struct {
	services.AuthService
	user *models.User
}

func (u userLookup) GetUserByID(_ context.Context, organizationID, userID uuid.UUID) (*models.User, error) {
	if organizationID != u.user.OrganizationID || userID != u.user.ID {
		return nil, apperrors.ErrUserNotFound
	}
	return u.user, nil
}

func TestSession_InitializeWithExpiredTokenAgainstRouter(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	tokens, err := services.NewTokenService("client-test-secret")
	require.NoError(t, err)
	tokens.WithClock(func() time.Time { return time.Unix(0, now.Load()) })

	user := &models.User{ID: uuid.New(), OrganizationID: uuid.New(), Email: "a@x.com", FirstName: "A", LastName: "B", Role: models.RoleOwner}
	token, _, err := tokens.Issue(user.ID, user.OrganizationID, user.Role)
	require.NoError(t, err)

	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		AuthService: userLookup{user: user},
		Verifier:    tokens,
		RateLimiter: caching.NewMemoryCacheService(),
		RateLimit:   middleware.RateLimitConfig{Scope: "auth", Max: 100, Window: time.Minute},
		Logger:      zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)

	live := NewMemoryTokenStore()
	require.NoError(t, live.Save(token))
	fresh := NewSession(NewClient(srv.URL, live))
	require.NoError(t, fresh.Initialize(context.Background()))
	assert.True(t, fresh.Authenticated())
	assert.Equal(t, user.Email, fresh.User().Email)

	now.Add(int64(services.TokenTTL + time.Second))

	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(token))
	session := NewSession(NewClient(srv.URL, store))

	require.NoError(t, session.Initialize(context.Background()))
	assert.True(t, session.Initialized())
	assert.False(t, session.Authenticated())
	assert.Nil(t, session.User())

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSession_LogoutDoesNotWaitForInitialize(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		writeJSON(w, http.StatusOK, map[string]any{"user": User{ID: "u1", Email: "a@x.com"}})
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(validToken))
	session := NewSession(NewClient(srv.URL, store))

	initDone := make(chan struct{})
	go func() {
		_ = session.Initialize(context.Background())
		close(initDone)
	}()
	<-entered

	loggedOut := make(chan struct{})
	go func() {
		session.Logout()
		assert.False(t, session.Authenticated())
		close(loggedOut)
	}()
	select {
	case <-loggedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("Logout blocked behind the pending /auth/me call")
	}

	close(release)
	<-initDone

	assert.True(t, session.Initialized())
	assert.False(t, session.Authenticated(), "a late /auth/me answer must not undo Logout")
	assert.Nil(t, session.User())
	token, _ := store.Load()
	assert.Empty(t, token)
}

func TestSession_ConcurrentInitializeCallsServerOnce(t *testing.T) {
	srv := newFakeServer(t)
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(validToken))
	session := NewSession(NewClient(srv.URL, store))

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_ = session.Initialize(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	assert.True(t, session.Authenticated())
	assert.Equal(t, int32(1), srv.meCalls.Load())
}
