package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware resolves the bearer token on a request to a stored user.
// The role used for authorization is the stored one, so a demoted user loses
// access before their token expires.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle rejects the request with 401 unless it carries a valid token for an
// existing user.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.Subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewUnauthorized("user not found")
	case err != nil:
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, user)
	return c.Next()
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return token, nil
}

// UserFromContext returns the user stored by Handle.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(principalKey).(*domain.User)
	return user, ok && user != nil
}
