package auth

import (
	"context"
	"errors"
	"strings"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/httpx"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type RegisterOrganizationRequest struct {
	OrganizationName string `json:"organizationName" validate:"required,max=150"`
	Name             string `json:"name" validate:"required,max=100"`
	Email            string `json:"email" validate:"required,email,max=100"`
	Password         string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email,max=100"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=org_admin site_manager"`
}

func emailTaken(ctx context.Context, rs store.RecordStore, email string) (bool, error) {
	var existing models.User
	err := rs.ReadOne(ctx, &existing, store.Filter{store.Eq("email", email)})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RegisterOrganizationHandler creates a tenant with its first org admin.
func RegisterOrganizationHandler(cfg *config.Config, rs store.RecordStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterOrganizationRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		ctx := c.UserContext()

		taken, err := emailTaken(ctx, rs, body.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("EMAIL_TAKEN", "email %s is already registered", body.Email)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		org := models.Organization{Name: strings.TrimSpace(body.OrganizationName)}
		user := models.User{
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleOrgAdmin,
		}
		err = rs.InTx(ctx, func(tx store.RecordStore) error {
			if err := tx.Insert(ctx, &org); err != nil {
				return err
			}
			return store.ForOrganization(tx, org.ID).Insert(ctx, &user)
		})
		if err != nil {
			return err
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"token":        token,
			"organization": org,
			"user":         user,
		})
	}
}

func LoginHandler(cfg *config.Config, rs store.RecordStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := rs.ReadOne(c.UserContext(), &user, store.Filter{store.Eq("email", body.Email)}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  user,
		})
	}
}

func MeHandler(rs store.RecordStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := OrganizationID(c)
		if err != nil {
			return err
		}
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		ctx := c.UserContext()

		var user models.User
		if err := store.ForOrganization(rs, orgID).ReadOne(ctx, &user, store.Filter{store.Eq("id", userID)}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return err
		}

		var org models.Organization
		if err := rs.ReadOne(ctx, &org, store.Filter{store.Eq("id", orgID)}); err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"user":         user,
			"organization": org,
		})
	}
}

// CreateUserHandler lets an org admin add users to their own organization.
func CreateUserHandler(rs store.RecordStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := OrganizationID(c)
		if err != nil {
			return err
		}
		var body CreateUserRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		ctx := c.UserContext()

		taken, err := emailTaken(ctx, rs, body.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("EMAIL_TAKEN", "email %s is already registered", body.Email)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
		}
		if err := store.ForOrganization(rs, orgID).Insert(ctx, &user); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	}
}
