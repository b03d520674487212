package services

import (
	"context"
	"errors"
	"testing"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/models"
	"dentalcrm/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type OrganizationServiceTestSuite struct {
	suite.Suite
	orgRepo  *MockOrganizationRepository
	userRepo *MockUserRepository
	service  OrganizationService
}

func (suite *OrganizationServiceTestSuite) SetupTest() {
	suite.orgRepo = &MockOrganizationRepository{}
	suite.userRepo = &MockUserRepository{}
	suite.orgRepo.Test(suite.T())
	suite.userRepo.Test(suite.T())
	suite.service = NewOrganizationService(suite.orgRepo, suite.userRepo)
}

func (suite *OrganizationServiceTestSuite) TearDownTest() {
	suite.orgRepo.AssertExpectations(suite.T())
	suite.userRepo.AssertExpectations(suite.T())
}

func TestOrganizationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrganizationServiceTestSuite))
}

func (suite *OrganizationServiceTestSuite) TestGetCurrent_Success() {
	ctx := context.Background()
	org := &models.Organization{ID: uuid.New(), Name: "Clinic1"}
	suite.orgRepo.On("GetByID", ctx, org.ID).Return(org, nil)

	got, err := suite.service.GetCurrent(ctx, org.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), org, got)
}

func (suite *OrganizationServiceTestSuite) TestGetCurrent_NotFound() {
	ctx := context.Background()
	id := uuid.New()
	suite.orgRepo.On("GetByID", ctx, id).Return(nil, repositories.ErrNotFound)

	_, err := suite.service.GetCurrent(ctx, id)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *OrganizationServiceTestSuite) TestListMembers_PassesOrganizationThrough() {
	ctx := context.Background()
	orgID := uuid.New()
	users := []*models.User{{ID: uuid.New(), OrganizationID: orgID, Role: models.RoleOwner}}
	suite.userRepo.On("ListByOrganization", ctx, orgID, 50, 0).Return(users, nil)

	got, err := suite.service.ListMembers(ctx, orgID, 50, 0)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), users, got)
}

func (suite *OrganizationServiceTestSuite) TestListMembers_Error() {
	ctx := context.Background()
	orgID := uuid.New()
	suite.userRepo.On("ListByOrganization", ctx, orgID, 10, 0).Return(nil, errors.New("boom"))

	_, err := suite.service.ListMembers(ctx, orgID, 10, 0)
	assert.Equal(suite.T(), apperrors.KindInternal, apperrors.KindOf(err))
}
