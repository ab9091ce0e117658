package reconcile

import (
	"strings"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"
	"buildtrack-backend/internal/purchase"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubmitPurchaseRequest struct {
	ReceiptIDs        []uuid.UUID                   `json:"receiptIds" validate:"required,min=1"`
	ReceiptRates      map[uuid.UUID]decimal.Decimal `json:"receiptRates" validate:"required"`
	Site              string                        `json:"site" validate:"max=150"`
	VendorID          *uuid.UUID                    `json:"vendorId"`
	Vendor            string                        `json:"vendor" validate:"max=200"`
	InvoiceNumber     string                        `json:"invoiceNumber" validate:"max=50"`
	PurchaseDate      string                        `json:"purchaseDate"`
	ReceiptNumber     string                        `json:"receiptNumber" validate:"max=50"`
	RemainingQuantity *decimal.Decimal              `json:"remainingQuantity"`
}

// UpdatePurchaseRequest leaves the receipt selection alone when receiptIds
// is omitted; rates not given fall back to the ones stored on the purchase.
type UpdatePurchaseRequest struct {
	ReceiptIDs        []uuid.UUID                   `json:"receiptIds" validate:"omitempty,min=1"`
	ReceiptRates      map[uuid.UUID]decimal.Decimal `json:"receiptRates"`
	Site              string                        `json:"site" validate:"max=150"`
	VendorID          *uuid.UUID                    `json:"vendorId"`
	Vendor            string                        `json:"vendor" validate:"max=200"`
	InvoiceNumber     string                        `json:"invoiceNumber" validate:"max=50"`
	PurchaseDate      string                        `json:"purchaseDate"`
	ReceiptNumber     string                        `json:"receiptNumber" validate:"max=50"`
	ConsumedQuantity  *decimal.Decimal              `json:"consumedQuantity"`
	RemainingQuantity *decimal.Decimal              `json:"remainingQuantity"`
}

type AdjustStockRequest struct {
	ConsumedQuantity  *decimal.Decimal `json:"consumedQuantity"`
	RemainingQuantity *decimal.Decimal `json:"remainingQuantity"`
}

func submitResponse(res *SubmitResult) fiber.Map {
	failures := res.LinkFailures
	if failures == nil {
		failures = []LinkFailure{}
	}
	return fiber.Map{
		"purchase":     res.Purchase,
		"linked":       res.Linked,
		"requested":    res.Requested,
		"linkFailures": failures,
		"warnings":     res.Warnings(),
	}
}

func warningsOf(syncWarning error) []string {
	if syncWarning == nil {
		return []string{}
	}
	return []string{"material stock was not updated: " + syncWarning.Error()}
}

// optionalDate parses purchaseDate; empty yields the zero time.
func optionalDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := httpx.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation("INVALID_DATE", "purchaseDate %q must be YYYY-MM-DD", raw)
	}
	return t, nil
}

// POST /api/materials
func CreatePurchaseHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		var body SubmitPurchaseRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		date, err := optionalDate(body.PurchaseDate)
		if err != nil {
			return err
		}

		res, err := e.SubmitPurchase(c.UserContext(), orgID, Submission{
			ReceiptIDs:        body.ReceiptIDs,
			Rates:             body.ReceiptRates,
			Site:              body.Site,
			VendorID:          body.VendorID,
			Vendor:            body.Vendor,
			InvoiceNumber:     body.InvoiceNumber,
			PurchaseDate:      date,
			ReceiptNumber:     body.ReceiptNumber,
			RemainingOverride: body.RemainingQuantity,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(submitResponse(res))
	}
}

// PATCH /api/materials/:id
func UpdatePurchaseHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body UpdatePurchaseRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		date, err := optionalDate(body.PurchaseDate)
		if err != nil {
			return err
		}

		res, err := e.SubmitPurchase(c.UserContext(), orgID, Submission{
			PurchaseID:        &id,
			ReceiptIDs:        body.ReceiptIDs,
			Rates:             body.ReceiptRates,
			Site:              body.Site,
			VendorID:          body.VendorID,
			Vendor:            body.Vendor,
			InvoiceNumber:     body.InvoiceNumber,
			PurchaseDate:      date,
			ReceiptNumber:     body.ReceiptNumber,
			ConsumedOverride:  body.ConsumedQuantity,
			RemainingOverride: body.RemainingQuantity,
		})
		if err != nil {
			return err
		}
		return c.JSON(submitResponse(res))
	}
}

// GET /api/materials?materialId=&vendorId=&site=&from=&to=&limit=
func ListPurchasesHandler(book *purchase.Book) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		f := purchase.ListFilter{
			Site:  c.Query("site"),
			Limit: c.QueryInt("limit", 0),
		}
		if f.MaterialID, err = httpx.QueryUUID(c, "materialId"); err != nil {
			return err
		}
		if f.VendorID, err = httpx.QueryUUID(c, "vendorId"); err != nil {
			return err
		}
		if f.From, err = httpx.QueryDate(c, "from"); err != nil {
			return err
		}
		if f.To, err = httpx.QueryDate(c, "to"); err != nil {
			return err
		}

		list, err := book.List(c.UserContext(), orgID, f)
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// GET /api/materials/:id
func GetPurchaseHandler(e *Engine, book *purchase.Book) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		p, err := book.Get(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		receipts, err := e.LinkedReceipts(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"purchase": p,
			"receipts": receipts,
		})
	}
}

// PATCH /api/materials/:id/stock
func AdjustPurchaseStockHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body AdjustStockRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}

		res, err := e.AdjustPurchaseStock(c.UserContext(), orgID, id, body.ConsumedQuantity, body.RemainingQuantity)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"purchase": res.Purchase,
			"warnings": warningsOf(res.SyncWarning),
		})
	}
}

// DELETE /api/materials/:id
func DeletePurchaseHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		syncWarning, err := e.DeletePurchase(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"deleted":  id,
			"warnings": warningsOf(syncWarning),
		})
	}
}

// POST /api/material-masters/:id/sync
func SyncMaterialHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		snap, err := e.SyncMaterialMaster(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"materialId": id,
			"snapshot":   snap,
		})
	}
}
