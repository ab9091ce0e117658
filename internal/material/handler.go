package material

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/quantity"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type SiteAllocationRequest struct {
	SiteID   string          `json:"siteId" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

type CreateMaterialRequest struct {
	Name            string                  `json:"name" validate:"required,max=150"`
	Category        models.MaterialCategory `json:"category" validate:"required"`
	Unit            string                  `json:"unit" validate:"required,max=20"`
	StandardRate    decimal.Decimal         `json:"standardRate"`
	IsActive        *bool                   `json:"isActive"`
	OpeningBalance  *decimal.Decimal        `json:"openingBalance"`
	SiteAllocations []SiteAllocationRequest `json:"siteAllocations" validate:"dive"`
}

type UpdateMaterialRequest struct {
	Name         *string                  `json:"name" validate:"omitempty,max=150"`
	Category     *models.MaterialCategory `json:"category"`
	Unit         *string                  `json:"unit" validate:"omitempty,max=20"`
	StandardRate *decimal.Decimal         `json:"standardRate"`
	IsActive     *bool                    `json:"isActive"`
	// null clears the organization-level opening balance
	OpeningBalance quantity.Optional `json:"openingBalance"`
}

type SetSiteAllocationsRequest struct {
	SiteAllocations []SiteAllocationRequest `json:"siteAllocations" validate:"dive"`
}

func allocationInputs(reqs []SiteAllocationRequest) []AllocationInput {
	out := make([]AllocationInput, 0, len(reqs))
	for _, a := range reqs {
		out = append(out, AllocationInput{SiteID: a.SiteID, Quantity: a.Quantity})
	}
	return out
}

// GET /api/material-masters?category=cement&activeOnly=true&search=opc
func ListMaterialsHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		list, err := reg.List(c.UserContext(), orgID, ListFilter{
			Category:   models.MaterialCategory(c.Query("category")),
			ActiveOnly: c.QueryBool("activeOnly", false),
			Search:     c.Query("search"),
		})
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// GET /api/material-masters/:id
func GetMaterialHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		m, err := reg.Read(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

// POST /api/material-masters
func CreateMaterialHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		var body CreateMaterialRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		m, err := reg.Create(c.UserContext(), orgID, CreateInput{
			Name:            body.Name,
			Category:        body.Category,
			Unit:            body.Unit,
			StandardRate:    body.StandardRate,
			IsActive:        body.IsActive,
			OpeningBalance:  body.OpeningBalance,
			SiteAllocations: allocationInputs(body.SiteAllocations),
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// PATCH /api/material-masters/:id
func UpdateMaterialHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateMaterialRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}

		in := UpdateInput{
			Name:                body.Name,
			Category:            body.Category,
			Unit:                body.Unit,
			StandardRate:        body.StandardRate,
			IsActive:            body.IsActive,
			ClearOpeningBalance: body.OpeningBalance.IsCleared(),
		}
		if ob, ok := body.OpeningBalance.Value(); ok {
			in.OpeningBalance = &ob
		}

		m, err := reg.Update(c.UserContext(), orgID, id, in)
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

// PUT /api/material-masters/:id/site-allocations
func SetSiteAllocationsHandler(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body SetSiteAllocationsRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		m, err := reg.SetSiteAllocations(c.UserContext(), orgID, id, allocationInputs(body.SiteAllocations))
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

// DELETE /api/material-masters/:id
func DeleteMaterialHandler(reg *Registry) fiber.Handler {
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
