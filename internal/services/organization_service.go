package services

import (
	"context"
	"errors"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/models"
	"dentalcrm/internal/repositories"

	"github.com/google/uuid"
)

// OrganizationService serves tenant-scoped reads. Callers pass the organization
// id from the verified identity; nothing here accepts it from request input.
type OrganizationService interface {
	GetCurrent(ctx context.Context, organizationID uuid.UUID) (*models.Organization, error)
	ListMembers(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.User, error)
}

type organizationService struct {
	orgRepo  repositories.OrganizationRepository
	userRepo repositories.UserRepository
}

func NewOrganizationService(orgRepo repositories.OrganizationRepository, userRepo repositories.UserRepository) OrganizationService {
	return &organizationService{orgRepo: orgRepo, userRepo: userRepo}
}

func (s *organizationService) GetCurrent(ctx context.Context, organizationID uuid.UUID) (*models.Organization, error) {
	org, err := s.orgRepo.GetByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("Organization not found")
		}
		return nil, apperrors.Internal("Failed to load organization", err)
	}
	return org, nil
}

func (s *organizationService) ListMembers(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.User, error) {
	users, err := s.userRepo.ListByOrganization(ctx, organizationID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("Failed to list users", err)
	}
	return users, nil
}
