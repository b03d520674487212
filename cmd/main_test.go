package main

import (
	"bytes"
	"context"
	"testing"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/config"
	"dentalcrm/internal/models"
	"dentalcrm/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthService struct {
	services.AuthService
	err   error
	calls []*services.RegisterRequest
}

func (s *stubAuthService) Register(_ context.Context, req *services.RegisterRequest) (*models.AuthResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuthResponse{User: &models.User{ID: uuid.New(), OrganizationID: uuid.New()}}, nil
}

func TestSeed_CreatesOwner(t *testing.T) {
	svc := &stubAuthService{}
	err := seed(context.Background(), svc, config.SeedConfig{AdminEmail: "admin@x.com", AdminPassword: "secret1", OrgName: "Default Org"})

	require.NoError(t, err)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "Default Org", svc.calls[0].OrganizationName)
}

func TestSeed_ExistingAccountIsSkipped(t *testing.T) {
	svc := &stubAuthService{err: apperrors.ErrUserExists}
	err := seed(context.Background(), svc, config.SeedConfig{AdminEmail: "admin@x.com", AdminPassword: "secret1", OrgName: "Default Org"})

	assert.NoError(t, err)
}

func TestSeed_RequiresCredentials(t *testing.T) {
	svc := &stubAuthService{}
	err := seed(context.Background(), svc, config.SeedConfig{OrgName: "Default Org"})

	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
	assert.Empty(t, svc.calls)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"dentalcrm"`)

	_, err = newLogger(config.LoggingConfig{Level: "loud"}, &buf)
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}
