package site

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"

	"github.com/gofiber/fiber/v2"
)

type CreateSiteRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	Address  string `json:"address" validate:"max=255"`
	IsActive *bool  `json:"isActive"`
}

type UpdateSiteRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=150"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
	IsActive *bool   `json:"isActive"`
}

// GET /api/sites?activeOnly=true
func ListSitesHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		sites, err := reg.List(c.UserContext(), orgID, c.QueryBool("activeOnly", false))
		if err != nil {
			return err
		}
		return c.JSON(sites)
	}
}

// GET /api/sites/:id
func GetSiteHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		s, err := reg.Get(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// POST /api/sites
func CreateSiteHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		var body CreateSiteRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		s, err := reg.Create(c.UserContext(), orgID, Input{
			Name:     body.Name,
			Address:  body.Address,
			IsActive: body.IsActive,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// PATCH /api/sites/:id
func UpdateSiteHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateSiteRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		s, err := reg.Update(c.UserContext(), orgID, id, Patch{
			Name:     body.Name,
			Address:  body.Address,
			IsActive: body.IsActive,
		})
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// DELETE /api/sites/:id
func DeleteSiteHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		if err := reg.Delete(c.UserContext(), orgID, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
