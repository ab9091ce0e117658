package purchase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

// Book stores purchases and their per-receipt lines.
type Book struct {
	rs store.RecordStore
}

func NewBook(rs store.RecordStore) *Book {
	return &Book{rs: rs}
}

type ListFilter struct {
	MaterialID *uuid.UUID
	VendorID   *uuid.UUID
	Site       string
	From       *time.Time
	To         *time.Time
	Limit      int
}

func NotFound(id uuid.UUID) *apperr.Error {
	return apperr.NotFound("PURCHASE_NOT_FOUND", "purchase %s not found", id).With("purchaseId", id)
}

func (b *Book) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Purchase, error) {
	var p models.Purchase
	err := store.ForOrganization(b.rs, orgID).ReadOne(ctx, &p, store.Filter{store.Eq("id", id)},
		store.Preload("Lines"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound(id)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(p.Lines, func(i, j int) bool { return p.Lines[i].Position < p.Lines[j].Position })
	return &p, nil
}

func (b *Book) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.Purchase, error) {
	var conds store.Filter
	if f.MaterialID != nil {
		conds = append(conds, store.Eq("material_id", *f.MaterialID))
	}
	if f.VendorID != nil {
		conds = append(conds, store.Eq("vendor_id", *f.VendorID))
	}
	if f.Site != "" {
		conds = append(conds, store.Eq("site", f.Site))
	}
	if f.From != nil {
		conds = append(conds, store.Gte("purchase_date", *f.From))
	}
	if f.To != nil {
		conds = append(conds, store.Lte("purchase_date", *f.To))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	out := []models.Purchase{}
	if err := store.ForOrganization(b.rs, orgID).Read(ctx, &out, conds,
		store.OrderBy("purchase_date DESC, created_at DESC"), store.Limit(limit)); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByMaterial returns every purchase of a material, unpaged; the rollup
// needs the full set.
func (b *Book) ListByMaterial(ctx context.Context, orgID, materialID uuid.UUID) ([]models.Purchase, error) {
	var out []models.Purchase
	if err := store.ForOrganization(b.rs, orgID).Read(ctx, &out,
		store.Filter{store.Eq("material_id", materialID)}); err != nil {
		return nil, err
	}
	return out, nil
}

// Save inserts p when it has no id yet, otherwise overwrites its columns.
func (b *Book) Save(ctx context.Context, orgID uuid.UUID, p *models.Purchase) error {
	tenant := store.ForOrganization(b.rs, orgID)
	if p.ID == uuid.Nil {
		if err := tenant.Insert(ctx, p); err != nil {
			return fmt.Errorf("save purchase: %w", err)
		}
		return nil
	}

	n, err := tenant.Update(ctx, &models.Purchase{}, store.Filter{store.Eq("id", p.ID)}, map[string]any{
		"material_id":        p.MaterialID,
		"material_name":      p.MaterialName,
		"site":               p.Site,
		"quantity":           p.Quantity,
		"unit_rate":          p.UnitRate,
		"total_amount":       p.TotalAmount,
		"vendor_id":          p.VendorID,
		"vendor":             p.Vendor,
		"invoice_number":     p.InvoiceNumber,
		"purchase_date":      p.PurchaseDate,
		"receipt_number":     p.ReceiptNumber,
		"consumed_quantity":  p.ConsumedQuantity,
		"remaining_quantity": p.RemainingQuantity,
		"linked_receipt_id":  p.LinkedReceiptID,
	})
	if err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	if n == 0 {
		return NotFound(p.ID)
	}
	return nil
}

// ReplaceLines swaps the stored lines of a purchase for lines, keeping their order.
func (b *Book) ReplaceLines(ctx context.Context, orgID, purchaseID uuid.UUID, lines []Line) error {
	return store.ForOrganization(b.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		if _, err := tx.Delete(ctx, &models.PurchaseLine{}, store.Filter{store.Eq("purchase_id", purchaseID)}); err != nil {
			return fmt.Errorf("replace purchase lines: %w", err)
		}
		for i, l := range lines {
			row := &models.PurchaseLine{
				PurchaseID: purchaseID,
				ReceiptID:  l.ReceiptID,
				Position:   i,
				Quantity:   l.Quantity,
				UnitRate:   l.UnitRate,
				Amount:     l.Amount,
			}
			if err := tx.Insert(ctx, row); err != nil {
				return fmt.Errorf("replace purchase lines: %w", err)
			}
		}
		return nil
	})
}

// Lines returns the stored lines in selection order.
func (b *Book) Lines(ctx context.Context, orgID, purchaseID uuid.UUID) ([]models.PurchaseLine, error) {
	out := []models.PurchaseLine{}
	if err := store.ForOrganization(b.rs, orgID).Read(ctx, &out,
		store.Filter{store.Eq("purchase_id", purchaseID)}, store.OrderBy("position ASC")); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStock overwrites the consumed/remaining figures of one purchase.
func (b *Book) SetStock(ctx context.Context, orgID, id uuid.UUID, s StockFigures) error {
	n, err := store.ForOrganization(b.rs, orgID).Update(ctx, &models.Purchase{}, store.Filter{store.Eq("id", id)},
		map[string]any{
			"consumed_quantity":  s.Consumed,
			"remaining_quantity": s.Remaining,
		})
	if err != nil {
		return fmt.Errorf("set purchase stock: %w", err)
	}
	if n == 0 {
		return NotFound(id)
	}
	return nil
}

// SetLinkedReceipt points the purchase at a representative receipt, or
// clears it when receiptID is nil. With onlyIfEmpty the write only happens
// while no receipt is recorded yet.
func (b *Book) SetLinkedReceipt(ctx context.Context, orgID, id uuid.UUID, receiptID *uuid.UUID, onlyIfEmpty bool) (bool, error) {
	f := store.Filter{store.Eq("id", id)}
	if onlyIfEmpty {
		f = f.And(store.IsNull("linked_receipt_id"))
	}
	n, err := store.ForOrganization(b.rs, orgID).Update(ctx, &models.Purchase{}, f,
		map[string]any{"linked_receipt_id": receiptID})
	if err != nil {
		return false, fmt.Errorf("set linked receipt: %w", err)
	}
	return n > 0, nil
}

// Delete removes a purchase and its lines.
func (b *Book) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return store.ForOrganization(b.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		if _, err := tx.Delete(ctx, &models.PurchaseLine{}, store.Filter{store.Eq("purchase_id", id)}); err != nil {
			return fmt.Errorf("delete purchase lines: %w", err)
		}
		n, err := tx.Delete(ctx, &models.Purchase{}, store.Filter{store.Eq("id", id)})
		if err != nil {
			return fmt.Errorf("delete purchase: %w", err)
		}
		if n == 0 {
			return NotFound(id)
		}
		return nil
	})
}

// Rates returns the billed rate per receipt from stored lines.
func Rates(lines []models.PurchaseLine) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(lines))
	for _, l := range lines {
		out[l.ReceiptID] = l.UnitRate
	}
	return out
}
