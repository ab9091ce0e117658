package receipt

import (
	"context"
	"strings"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"
	"buildtrack-backend/internal/quantity"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Linker moves receipts on and off purchases, re-totalling the purchase each
// time; implemented by the reconciliation engine.
type Linker interface {
	AttachReceipt(ctx context.Context, orgID, receiptID, purchaseID uuid.UUID, rate *decimal.Decimal) error
	UnlinkReceipt(ctx context.Context, orgID, receiptID uuid.UUID) error
}

type CreateReceiptRequest struct {
	Date          string            `json:"date" validate:"required"`
	VehicleNumber string            `json:"vehicleNumber" validate:"required,max=30"`
	MaterialID    uuid.UUID         `json:"materialId" validate:"required"`
	FilledWeight  decimal.Decimal   `json:"filledWeight"`
	EmptyWeight   decimal.Decimal   `json:"emptyWeight"`
	Quantity      quantity.Optional `json:"quantity"`
	VendorID      *uuid.UUID        `json:"vendorId"`
	SiteID        string            `json:"siteId" validate:"required,max=64"`
	ChallanNumber string            `json:"challanNumber" validate:"max=50"`
	Remarks       string            `json:"remarks" validate:"max=500"`
}

type BatchLineRequest struct {
	MaterialID   uuid.UUID         `json:"materialId" validate:"required"`
	FilledWeight decimal.Decimal   `json:"filledWeight"`
	EmptyWeight  decimal.Decimal   `json:"emptyWeight"`
	Quantity     quantity.Optional `json:"quantity"`
	Remarks      string            `json:"remarks" validate:"max=500"`
}

type CreateBatchRequest struct {
	Date          string             `json:"date" validate:"required"`
	VehicleNumber string             `json:"vehicleNumber" validate:"required,max=30"`
	VendorID      *uuid.UUID         `json:"vendorId"`
	SiteID        string             `json:"siteId" validate:"required,max=64"`
	ChallanNumber string             `json:"challanNumber" validate:"max=50"`
	Remarks       string             `json:"remarks" validate:"max=500"`
	Lines         []BatchLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// UpdateReceiptRequest patches fields and optionally the link state:
// linkedPurchaseId null unlinks, an id links, a missing key leaves it alone.
// unitRate is the rate the receipt is billed at on the purchase; it is
// required when linking and re-bills a linked receipt on its own.
type UpdateReceiptRequest struct {
	Date             *string            `json:"date"`
	VehicleNumber    *string            `json:"vehicleNumber" validate:"omitempty,max=30"`
	MaterialID       *uuid.UUID         `json:"materialId"`
	FilledWeight     *decimal.Decimal   `json:"filledWeight"`
	EmptyWeight      *decimal.Decimal   `json:"emptyWeight"`
	Quantity         quantity.Optional  `json:"quantity"`
	VendorID         httpx.OptionalUUID `json:"vendorId"`
	SiteID           *string            `json:"siteId" validate:"omitempty,max=64"`
	ChallanNumber    *string            `json:"challanNumber" validate:"omitempty,max=50"`
	Remarks          *string            `json:"remarks" validate:"omitempty,max=500"`
	LinkedPurchaseID httpx.OptionalUUID `json:"linkedPurchaseId"`
	UnitRate         *decimal.Decimal   `json:"unitRate"`
}

func parseDate(raw string) (time.Time, error) {
	t, err := httpx.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperr.Validation("INVALID_DATE", "date %q must be YYYY-MM-DD", raw)
	}
	return t, nil
}

func (b UpdateReceiptRequest) patch() (Patch, bool, error) {
	p := Patch{
		VehicleNumber: b.VehicleNumber,
		MaterialID:    b.MaterialID,
		FilledWeight:  b.FilledWeight,
		EmptyWeight:   b.EmptyWeight,
		Quantity:      b.Quantity,
		SiteID:        b.SiteID,
		ChallanNumber: b.ChallanNumber,
		Remarks:       b.Remarks,
	}
	if b.Date != nil {
		d, err := parseDate(*b.Date)
		if err != nil {
			return p, false, err
		}
		p.Date = &d
	}
	if b.VendorID.Present {
		p.VendorID = b.VendorID.ID
		p.ClearVendor = b.VendorID.ID == nil
	}

	changed := p.Date != nil || p.VehicleNumber != nil || p.MaterialID != nil ||
		p.FilledWeight != nil || p.EmptyWeight != nil || !p.Quantity.IsAbsent() ||
		b.VendorID.Present || p.SiteID != nil || p.ChallanNumber != nil || p.Remarks != nil
	return p, changed, nil
}

// POST /api/material-receipts
func CreateReceiptHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		var body CreateReceiptRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		d, err := parseDate(body.Date)
		if err != nil {
			return err
		}

		r, err := l.Create(c.UserContext(), orgID, Input{
			Date:          d,
			VehicleNumber: body.VehicleNumber,
			MaterialID:    body.MaterialID,
			FilledWeight:  body.FilledWeight,
			EmptyWeight:   body.EmptyWeight,
			Quantity:      body.Quantity,
			VendorID:      body.VendorID,
			SiteID:        body.SiteID,
			ChallanNumber: body.ChallanNumber,
			Remarks:       body.Remarks,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(r)
	}
}

// POST /api/material-receipts/batch
func CreateBatchHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		var body CreateBatchRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		d, err := parseDate(body.Date)
		if err != nil {
			return err
		}

		in := BatchInput{
			Date:          d,
			VehicleNumber: body.VehicleNumber,
			VendorID:      body.VendorID,
			SiteID:        body.SiteID,
			ChallanNumber: body.ChallanNumber,
			Remarks:       body.Remarks,
		}
		for _, line := range body.Lines {
			in.Lines = append(in.Lines, LineInput{
				MaterialID:   line.MaterialID,
				FilledWeight: line.FilledWeight,
				EmptyWeight:  line.EmptyWeight,
				Quantity:     line.Quantity,
				Remarks:      line.Remarks,
			})
		}

		rows, err := l.CreateBatch(c.UserContext(), orgID, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"batchId":  rows[0].BatchID,
			"receipts": rows,
		})
	}
}

// GET /api/material-receipts?vendorId=&siteId=&materialId=&unlinkedOnly=true&availableFor=&from=&to=
func ListReceiptsHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}

		f := ListFilter{
			SiteID:       c.Query("siteId"),
			UnlinkedOnly: c.QueryBool("unlinkedOnly", false),
			Limit:        c.QueryInt("limit", 0),
		}
		if f.VendorID, err = httpx.QueryUUID(c, "vendorId"); err != nil {
			return err
		}
		if f.MaterialID, err = httpx.QueryUUID(c, "materialId"); err != nil {
			return err
		}
		if f.AvailableFor, err = httpx.QueryUUID(c, "availableFor"); err != nil {
			return err
		}
		if f.From, err = httpx.QueryDate(c, "from"); err != nil {
			return err
		}
		if f.To, err = httpx.QueryDate(c, "to"); err != nil {
			return err
		}

		rows, err := l.List(c.UserContext(), orgID, f)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/material-receipts/:id
func GetReceiptHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		r, err := l.Get(c.UserContext(), orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(r)
	}
}

// PATCH /api/material-receipts/:id
func UpdateReceiptHandler(l *Ledger, linker Linker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateReceiptRequest
		if err := httpx.Bind(c, &body); err != nil {
			return err
		}
		patch, changed, err := body.patch()
		if err != nil {
			return err
		}
		ctx := c.UserContext()

		// unlink before editing so a material or quantity change on the same request is allowed
		if body.LinkedPurchaseID.Present && body.LinkedPurchaseID.ID == nil {
			if err := linker.UnlinkReceipt(ctx, orgID, id); err != nil {
				return err
			}
		}
		if changed {
			if _, err := l.Update(ctx, orgID, id, patch); err != nil {
				return err
			}
		}
		switch {
		case body.LinkedPurchaseID.Present && body.LinkedPurchaseID.ID != nil:
			if err := linker.AttachReceipt(ctx, orgID, id, *body.LinkedPurchaseID.ID, body.UnitRate); err != nil {
				return err
			}
		case !body.LinkedPurchaseID.Present && body.UnitRate != nil:
			current, err := l.Get(ctx, orgID, id)
			if err != nil {
				return err
			}
			if !current.IsLinked() {
				return apperr.Validation("RECEIPT_NOT_LINKED", "receipt %s is not on a purchase; send linkedPurchaseId with unitRate", id)
			}
			if err := linker.AttachReceipt(ctx, orgID, id, *current.LinkedPurchaseID, body.UnitRate); err != nil {
				return err
			}
		}

		r, err := l.Get(ctx, orgID, id)
		if err != nil {
			return err
		}
		return c.JSON(r)
	}
}

// DELETE /api/material-receipts/:id
func DeleteReceiptHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		if err := l.Delete(c.UserContext(), orgID, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/material-receipts/import (multipart, field "file")
func ImportReceiptsHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return apperr.Validation("FILE_REQUIRED", "upload the spreadsheet in the file field")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return apperr.Validation("INVALID_XLSX", "only .xlsx files can be imported")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return err
		}
		defer file.Close()

		res, err := l.ImportXLSX(c.UserContext(), orgID, file)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if len(res.Created) > 0 {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(res)
	}
}

// GET /api/material-receipts/opening-balance?materialId=&siteId=
func OpeningBalanceHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}
		materialID, err := httpx.QueryUUID(c, "materialId")
		if err != nil {
			return err
		}
		siteID := c.Query("siteId")
		if materialID == nil || siteID == "" {
			return apperr.Validation("INVALID_QUERY", "materialId and siteId are required")
		}

		ob, err := l.CurrentOpeningBalance(c.UserContext(), orgID, *materialID, siteID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"materialId":     materialID,
			"siteId":         siteID,
			"openingBalance": ob,
		})
	}
}
