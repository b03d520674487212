package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/metrics"
	"dentalcrm/internal/models"
	"dentalcrm/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const minPasswordLength = 6

// AuthService registers organizations with their owner and authenticates users.
type AuthService interface {
	Register(ctx context.Context, req *RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*models.AuthResponse, error)
	GetUserByID(ctx context.Context, organizationID, userID uuid.UUID) (*models.User, error)
}

type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	OrganizationName string `json:"organizationName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authService struct {
	userRepo  repositories.UserRepository
	orgRepo   repositories.OrganizationRepository
	hasher    *PasswordHasher
	tokens    *TokenService
	metrics   *metrics.Metrics
	dummyHash string
}

func NewAuthService(
	userRepo repositories.UserRepository,
	orgRepo repositories.OrganizationRepository,
	hasher *PasswordHasher,
	tokens *TokenService,
	m *metrics.Metrics,
) AuthService {
	// Compared against when the email is unknown, so both login failures cost one bcrypt.
	dummyHash, _ := hasher.Hash("dentalcrm-timing-equalizer")

	return &authService{
		userRepo:  userRepo,
		orgRepo:   orgRepo,
		hasher:    hasher,
		tokens:    tokens,
		metrics:   m,
		dummyHash: dummyHash,
	}
}

// NormalizeEmail is applied on every write and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*models.AuthResponse, error) {
	logger := zerolog.Ctx(ctx)

	email := NormalizeEmail(req.Email)
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	orgName := strings.TrimSpace(req.OrganizationName)

	if email == "" || req.Password == "" || firstName == "" || lastName == "" || orgName == "" {
		s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
		return nil, apperrors.Validation("email, password, firstName, lastName and organizationName are required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
		return nil, apperrors.Validation("invalid email")
	}
	if len(req.Password) < minPasswordLength {
		s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
		return nil, apperrors.Validation("password must be at least 6 characters")
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		s.metrics.ObserveAuth("register", metrics.OutcomeError)
		return nil, apperrors.Internal("Failed to create user", err)
	}
	if exists {
		s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
		return nil, apperrors.ErrUserExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
		if apperrors.KindOf(err) == apperrors.KindValidation {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to create user", err)
	}

	org := &models.Organization{ID: uuid.New(), Name: orgName}
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         models.RoleOwner,
	}

	// A concurrent registration of the same email loses on the unique index
	// and its organization row is rolled back with it.
	if err := s.orgRepo.CreateWithOwner(ctx, org, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			s.metrics.ObserveAuth("register", metrics.OutcomeRejected)
			return nil, apperrors.ErrUserExists
		}
		s.metrics.ObserveAuth("register", metrics.OutcomeError)
		return nil, apperrors.Internal("Failed to create user", err)
	}

	resp, err := s.respond(user)
	if err != nil {
		s.metrics.ObserveAuth("register", metrics.OutcomeError)
		return nil, err
	}

	logger.Info().
		Str("user_id", user.ID.String()).
		Str("organization_id", org.ID.String()).
		Msg("organization registered")
	s.metrics.ObserveAuth("register", metrics.OutcomeSuccess)
	return resp, nil
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*models.AuthResponse, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		s.metrics.ObserveAuth("login", metrics.OutcomeRejected)
		return nil, apperrors.Validation("email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			s.metrics.ObserveAuth("login", metrics.OutcomeError)
			return nil, apperrors.Internal("Login failed", err)
		}
		s.hasher.Verify(req.Password, s.dummyHash)
		s.metrics.ObserveAuth("login", metrics.OutcomeRejected)
		return nil, apperrors.ErrInvalidCredentials
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.metrics.ObserveAuth("login", metrics.OutcomeRejected)
		zerolog.Ctx(ctx).Debug().Str("user_id", user.ID.String()).Msg("password mismatch")
		return nil, apperrors.ErrInvalidCredentials
	}

	resp, err := s.respond(user)
	if err != nil {
		s.metrics.ObserveAuth("login", metrics.OutcomeError)
		return nil, err
	}
	s.metrics.ObserveAuth("login", metrics.OutcomeSuccess)
	return resp, nil
}

func (s *authService) GetUserByID(ctx context.Context, organizationID, userID uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, organizationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Internal("Failed to load user", err)
	}
	return user, nil
}

func (s *authService) respond(user *models.User) (*models.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.OrganizationID, user.Role)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue token", err)
	}
	user.PasswordHash = ""
	return &models.AuthResponse{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
