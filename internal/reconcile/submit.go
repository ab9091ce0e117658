package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/purchase"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Submission creates a purchase (PurchaseID nil) or edits one. On edit,
// empty header fields keep their stored values and a nil ReceiptIDs keeps
// the current selection at its stored rates.
type Submission struct {
	PurchaseID *uuid.UUID

	ReceiptIDs []uuid.UUID
	Rates      map[uuid.UUID]decimal.Decimal

	Site          string
	VendorID      *uuid.UUID
	Vendor        string
	InvoiceNumber string
	PurchaseDate  time.Time
	ReceiptNumber string

	ConsumedOverride  *decimal.Decimal
	RemainingOverride *decimal.Decimal
}

type LinkFailure struct {
	ReceiptID uuid.UUID `json:"receiptId"`
	Reason    string    `json:"reason"`
}

// SubmitResult reports a stored purchase together with the non-fatal
// problems of the steps after the write.
type SubmitResult struct {
	Purchase  *models.Purchase
	Linked    int
	Requested int
	// SyncWarning is the rollup failure, if any.
	SyncWarning  error
	LinkFailures []LinkFailure
	UnlinkErrors []error
}

func (r *SubmitResult) PartialLinkFailure() bool {
	return r.Linked < r.Requested
}

func (r *SubmitResult) Warnings() []string {
	out := []string{}
	if r.SyncWarning != nil {
		out = append(out, "material stock was not updated: "+r.SyncWarning.Error())
	}
	if r.PartialLinkFailure() {
		out = append(out, fmt.Sprintf("only %d of %d receipts were linked", r.Linked, r.Requested))
	}
	for _, err := range r.UnlinkErrors {
		out = append(out, "a deselected receipt is still linked: "+err.Error())
	}
	return out
}

type prepared struct {
	prior    *models.Purchase
	receipts []models.MaterialReceipt
	agg      *purchase.Aggregate
	held     []models.MaterialReceipt
}

func (e *Engine) prepare(ctx context.Context, orgID uuid.UUID, s *Submission) (*prepared, error) {
	pre := &prepared{}

	if s.PurchaseID != nil {
		prior, err := e.book.Get(ctx, orgID, *s.PurchaseID)
		if err != nil {
			return nil, err
		}
		pre.prior = prior
		held, err := e.LinkedReceipts(ctx, orgID, prior.ID)
		if err != nil {
			return nil, err
		}
		pre.held = held

		if s.ReceiptIDs == nil {
			s.ReceiptIDs = selectionOrder(prior, held)
		}
		stored := purchase.Rates(prior.Lines)
		if s.Rates == nil {
			s.Rates = map[uuid.UUID]decimal.Decimal{}
		}
		for _, id := range s.ReceiptIDs {
			if _, ok := s.Rates[id]; !ok {
				if rate, ok := stored[id]; ok {
					s.Rates[id] = rate
				}
			}
		}
	}

	if len(s.ReceiptIDs) == 0 {
		return nil, apperr.Validation("NO_RECEIPTS", "select at least one receipt")
	}
	for _, id := range s.ReceiptIDs {
		if rate, ok := s.Rates[id]; !ok || !rate.IsPositive() {
			return nil, apperr.Validation("RATE_NOT_POSITIVE", "receipt %s needs a unit rate greater than zero", id).
				With("receiptId", id)
		}
	}
	if s.ConsumedOverride != nil && s.ConsumedOverride.IsNegative() {
		return nil, apperr.Validation("NEGATIVE_CONSUMED", "consumed quantity cannot be negative")
	}

	var found []models.MaterialReceipt
	if err := store.ForOrganization(e.rs, orgID).Read(ctx, &found, store.Filter{store.In("id", s.ReceiptIDs)}); err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.MaterialReceipt, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	// keep the caller's order so the first selected receipt names the purchase
	for _, id := range s.ReceiptIDs {
		r, ok := byID[id]
		if !ok {
			return nil, receiptNotFound(id)
		}
		if r.LinkedPurchaseID != nil && (s.PurchaseID == nil || *r.LinkedPurchaseID != *s.PurchaseID) {
			return nil, linkConflict(&r)
		}
		pre.receipts = append(pre.receipts, r)
	}

	if strings.TrimSpace(s.Site) == "" {
		switch {
		case pre.prior != nil:
			s.Site = pre.prior.Site
		default:
			s.Site = pre.receipts[0].SiteName
		}
	}
	s.Site = strings.TrimSpace(s.Site)
	if s.Site == "" {
		return nil, apperr.Validation("SITE_REQUIRED", "purchase site is required")
	}

	agg, err := purchase.ComputeFromReceipts(pre.receipts, s.Rates)
	if err != nil {
		return nil, err
	}
	pre.agg = agg
	return pre, nil
}

func (e *Engine) resolveVendor(ctx context.Context, orgID uuid.UUID, s *Submission, pre *prepared) (*uuid.UUID, string, error) {
	if s.VendorID != nil {
		name, err := e.vendors.ResolveName(ctx, orgID, s.VendorID)
		if err != nil {
			return nil, "", err
		}
		return s.VendorID, name, nil
	}
	if s.Vendor != "" {
		return nil, strings.TrimSpace(s.Vendor), nil
	}
	if pre.prior != nil {
		return pre.prior.VendorID, pre.prior.Vendor, nil
	}
	first := pre.receipts[0]
	return first.VendorID, first.VendorName, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SubmitPurchase validates the selection, stores the purchase and its lines,
// re-runs the stock rollup, then links the selected receipts. Problems after
// the purchase is stored are reported on the result, never as an error.
func (e *Engine) SubmitPurchase(ctx context.Context, orgID uuid.UUID, s Submission) (*SubmitResult, error) {
	pre, err := e.prepare(ctx, orgID, &s)
	if err != nil {
		return nil, err
	}
	vendorID, vendorName, err := e.resolveVendor(ctx, orgID, &s, pre)
	if err != nil {
		return nil, err
	}

	stock := purchase.ApplyEdit(pre.prior, pre.agg, s.RemainingOverride)
	if s.ConsumedOverride != nil {
		stock.Consumed = decimal.NewNullDecimal(*s.ConsumedOverride)
		if s.RemainingOverride == nil {
			stock.Remaining = decimal.NewNullDecimal(pre.agg.Quantity.Sub(*s.ConsumedOverride))
		}
	}

	p := &models.Purchase{}
	action := models.AuditActionCreate
	if pre.prior != nil {
		cp := *pre.prior
		cp.Lines = nil
		p = &cp
		action = models.AuditActionUpdate
	}
	p.MaterialID = pre.agg.MaterialID
	p.MaterialName = pre.agg.MaterialName
	p.Site = s.Site
	p.Quantity = pre.agg.Quantity
	p.UnitRate = pre.agg.UnitRate
	p.TotalAmount = pre.agg.TotalAmount
	p.VendorID = vendorID
	p.Vendor = vendorName
	p.InvoiceNumber = firstNonEmpty(strings.TrimSpace(s.InvoiceNumber), p.InvoiceNumber)
	p.ReceiptNumber = firstNonEmpty(strings.TrimSpace(s.ReceiptNumber), p.ReceiptNumber)
	switch {
	case !s.PurchaseDate.IsZero():
		p.PurchaseDate = s.PurchaseDate
	case p.PurchaseDate.IsZero():
		p.PurchaseDate = pre.receipts[0].Date
	}
	p.ConsumedQuantity = stock.Consumed
	p.RemainingQuantity = stock.Remaining
	p.LinkedReceiptID = &pre.receipts[0].ID

	if err := e.book.Save(ctx, orgID, p); err != nil {
		return nil, err
	}
	if err := e.book.ReplaceLines(ctx, orgID, p.ID, pre.agg.Lines); err != nil {
		return nil, err
	}

	res := &SubmitResult{Requested: len(pre.receipts)}

	res.SyncWarning = e.syncBestEffort(ctx, orgID, p.MaterialID)
	if pre.prior != nil && pre.prior.MaterialID != p.MaterialID {
		if err := e.syncBestEffort(ctx, orgID, pre.prior.MaterialID); err != nil && res.SyncWarning == nil {
			res.SyncWarning = err
		}
	}

	var representative *uuid.UUID
	for i := range pre.receipts {
		r := &pre.receipts[i]
		if _, err := e.link(ctx, orgID, r, p.ID); err != nil {
			res.LinkFailures = append(res.LinkFailures, LinkFailure{ReceiptID: r.ID, Reason: err.Error()})
			continue
		}
		res.Linked++
		if representative == nil {
			representative = &r.ID
		}
	}
	if res.PartialLinkFailure() {
		e.log.Warn("purchase stored with unlinked receipts",
			zap.String("purchase_id", p.ID.String()),
			zap.Int("linked", res.Linked),
			zap.Int("requested", res.Requested))
		// the representative is the first selected receipt that did get linked
		if _, err := e.book.SetLinkedReceipt(ctx, orgID, p.ID, representative, false); err != nil {
			e.log.Warn("failed to record representative receipt on purchase",
				zap.String("purchase_id", p.ID.String()),
				zap.Error(err))
		}
	}

	selected := make(map[uuid.UUID]struct{}, len(pre.receipts))
	for _, r := range pre.receipts {
		selected[r.ID] = struct{}{}
	}
	for _, r := range pre.held {
		if _, keep := selected[r.ID]; keep {
			continue
		}
		if err := e.release(ctx, orgID, r.ID); err != nil {
			e.log.Warn("failed to unlink deselected receipt",
				zap.String("purchase_id", p.ID.String()),
				zap.String("receipt_id", r.ID.String()),
				zap.Error(err))
			res.UnlinkErrors = append(res.UnlinkErrors, err)
		}
	}

	stored, err := e.book.Get(ctx, orgID, p.ID)
	if err != nil {
		return nil, err
	}
	res.Purchase = stored

	entry := audit.LogOptions{
		EntityType:  audit.EntityPurchase,
		EntityID:    p.ID,
		Action:      action,
		Description: fmt.Sprintf("purchase of %s %s at %s", stored.Quantity.String(), stored.MaterialName, stored.Site),
		After:       stored,
	}
	if pre.prior != nil {
		entry.Before = pre.prior
	}
	e.audit.Record(ctx, orgID, entry)
	return res, nil
}

// StockResult is a purchase after a stock adjustment.
type StockResult struct {
	Purchase    *models.Purchase
	SyncWarning error
}

// AdjustPurchaseStock overwrites the consumed and/or remaining figures of one
// purchase and re-runs the rollup. A missing figure is derived from the other.
func (e *Engine) AdjustPurchaseStock(ctx context.Context, orgID, purchaseID uuid.UUID, consumed, remaining *decimal.Decimal) (*StockResult, error) {
	if consumed == nil && remaining == nil {
		return nil, apperr.Validation("NO_STOCK_CHANGE", "set consumedQuantity or remainingQuantity")
	}
	if consumed != nil && consumed.IsNegative() {
		return nil, apperr.Validation("NEGATIVE_CONSUMED", "consumed quantity cannot be negative")
	}

	before, err := e.book.Get(ctx, orgID, purchaseID)
	if err != nil {
		return nil, err
	}

	c, _ := purchase.Derive(before)
	if consumed != nil {
		c = *consumed
	}
	r := before.Quantity.Sub(c)
	if remaining != nil {
		r = *remaining
	}
	if err := e.book.SetStock(ctx, orgID, purchaseID, purchase.StockFigures{
		Consumed:  decimal.NewNullDecimal(c),
		Remaining: decimal.NewNullDecimal(r),
	}); err != nil {
		return nil, err
	}

	res := &StockResult{SyncWarning: e.syncBestEffort(ctx, orgID, before.MaterialID)}
	if res.Purchase, err = e.book.Get(ctx, orgID, purchaseID); err != nil {
		return nil, err
	}

	e.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityPurchase,
		EntityID:    purchaseID,
		Action:      models.AuditActionUpdate,
		Description: "purchase stock adjusted",
		Before:      map[string]any{"consumedQuantity": before.ConsumedQuantity, "remainingQuantity": before.RemainingQuantity},
		After:       map[string]any{"consumedQuantity": c, "remainingQuantity": r},
	})
	return res, nil
}

// DeletePurchase releases every receipt of the purchase, removes it and
// re-runs the rollup without it. The returned error is the sync warning.
func (e *Engine) DeletePurchase(ctx context.Context, orgID, purchaseID uuid.UUID) (syncWarning error, err error) {
	p, err := e.book.Get(ctx, orgID, purchaseID)
	if err != nil {
		return nil, err
	}

	released, err := store.ForOrganization(e.rs, orgID).Update(ctx, &models.MaterialReceipt{},
		store.Filter{store.Eq("linked_purchase_id", purchaseID)},
		map[string]any{"linked_purchase_id": nil})
	if err != nil {
		return nil, fmt.Errorf("release receipts: %w", err)
	}
	if err := e.book.Delete(ctx, orgID, purchaseID); err != nil {
		return nil, err
	}

	syncWarning = e.syncBestEffort(ctx, orgID, p.MaterialID)

	e.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityPurchase,
		EntityID:    purchaseID,
		Action:      models.AuditActionDelete,
		Description: fmt.Sprintf("purchase deleted, %d receipts released", released),
		Before:      p,
	})
	return syncWarning, nil
}
