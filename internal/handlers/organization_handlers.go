package handlers

import (
	"net/http"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/common"
	"dentalcrm/internal/services"

	"github.com/labstack/echo/v4"
)

// OrganizationHandlers serve the caller's own organization. There is no
// organization id in any route: it comes from the token only.
type OrganizationHandlers struct {
	orgService services.OrganizationService
}

func NewOrganizationHandlers(orgService services.OrganizationService) *OrganizationHandlers {
	return &OrganizationHandlers{orgService: orgService}
}

func (h *OrganizationHandlers) GetCurrent(c echo.Context) error {
	ctx := c.Request().Context()
	identity, ok := common.IdentityFromContext(ctx)
	if !ok {
		return apperrors.ErrNoToken
	}

	org, err := h.orgService.GetCurrent(ctx, identity.OrganizationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"organization": org})
}

func (h *OrganizationHandlers) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	identity, ok := common.IdentityFromContext(ctx)
	if !ok {
		return apperrors.ErrNoToken
	}

	limit, offset := common.ParsePagination(c.QueryParam("limit"), c.QueryParam("offset"))
	users, err := h.orgService.ListMembers(ctx, identity.OrganizationID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}
