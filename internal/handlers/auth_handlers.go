package handlers

import (
	"net/http"

	"dentalcrm/internal/apperrors"
	"dentalcrm/internal/common"
	"dentalcrm/internal/services"

	"github.com/labstack/echo/v4"
)

// AuthHandlers handles registration, login and identity endpoints
type AuthHandlers struct {
	authService services.AuthService
}

func NewAuthHandlers(authService services.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Register creates an organization together with its OWNER user
func (h *AuthHandlers) Register(c echo.Context) error {
	var req services.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("Invalid request format")
	}

	resp, err := h.authService.Register(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandlers) Login(c echo.Context) error {
	var req services.LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("Invalid request format")
	}

	resp, err := h.authService.Login(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Me reloads the caller from storage so a removed user gets 404 even with a valid token
func (h *AuthHandlers) Me(c echo.Context) error {
	ctx := c.Request().Context()
	identity, ok := common.IdentityFromContext(ctx)
	if !ok {
		return apperrors.ErrNoToken
	}

	user, err := h.authService.GetUserByID(ctx, identity.OrganizationID, identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

// Protected echoes the verified identity back without touching storage
func (h *AuthHandlers) Protected(c echo.Context) error {
	identity, ok := common.IdentityFromContext(c.Request().Context())
	if !ok {
		return apperrors.ErrNoToken
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":        "Access granted",
		"userId":         identity.UserID,
		"organizationId": identity.OrganizationID,
		"role":           identity.Role,
	})
}
