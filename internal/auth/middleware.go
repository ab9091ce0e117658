package auth

import (
	"strings"

	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	CtxUserIDKey         = "user_id"
	CtxUserRoleKey       = "user_role"
	CtxOrganizationIDKey = "organization_id"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxOrganizationIDKey, claims.OrganizationID)

		// services read the caller (for audit entries) from the request context
		c.SetUserContext(WithPrincipal(c.UserContext(), Principal{
			UserID:         claims.UserID,
			OrganizationID: claims.OrganizationID,
			Name:           claims.Name,
			Role:           claims.Role,
		}))

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role not resolved")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "not allowed for this role")
	}
}

// OrganizationID returns the tenant every query of the request is scoped to.
func OrganizationID(c *fiber.Ctx) (uuid.UUID, error) {
	org, ok := c.Locals(CtxOrganizationIDKey).(uuid.UUID)
	if !ok || org == uuid.Nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "organization not resolved")
	}
	return org, nil
}

func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(CtxUserIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
	}
	return id, nil
}
