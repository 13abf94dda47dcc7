package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medsupport/helpdesk/internal/api/dto"
	"github.com/medsupport/helpdesk/internal/service"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	login := req.Identifier()
	if login == "" || req.Password == "" {
		return apperrors.NewValidationError("login and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), login, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(user),
			"auth": dto.AuthResponse{Token: token, TokenType: "Bearer", ExpiresAt: exp},
		},
	})
}
