package services

import (
	"errors"
	"fmt"
	"time"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/common"
	"dentalcrm/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTTL    = 7 * 24 * time.Hour
	TokenIssuer = "dentalcrm"
)

// Claims carries the caller identity. The token is the only source of the
// organization id for tenant scoping.
type Claims struct {
	UserID         uuid.UUID   `json:"userId"`
	OrganizationID uuid.UUID   `json:"organizationId"`
	Role           models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (c *Claims) Validate() error {
	if c.UserID == uuid.Nil || c.OrganizationID == uuid.Nil {
		return errors.New("missing identity claims")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.Subject != c.UserID.String() {
		return errors.New("subject does not match userId")
	}
	return nil
}

func (c *Claims) Identity() common.Identity {
	return common.Identity{UserID: c.UserID, OrganizationID: c.OrganizationID, Role: c.Role}
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService refuses an empty secret so the server can never sign or accept
// tokens with a guessable key.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, apperrors.ErrMissingSecret
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the time source; used by tests for expiry.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) Issue(userID, organizationID uuid.UUID, role models.Role) (string, time.Time, error) {
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for role %q", role)
	}

	now := s.now()
	expiresAt := now.Add(TokenTTL)
	claims := &Claims{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns apperrors.ErrInvalidToken for every failure; the cause is kept for logs only.
func (s *TokenService) Verify(token string) (*Claims, error) {
	if s == nil {
		return nil, apperrors.ErrMissingSecret
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthentication, apperrors.ErrInvalidToken.Message, err)
	}
	if !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
