// Package reconcile links receipts to purchases and keeps each material's
// stock snapshot in line with the purchases recorded against it.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/material"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/purchase"
	"buildtrack-backend/internal/receipt"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the only writer of receipt link state and of material stock
// snapshots.
type Engine struct {
	rs          store.RecordStore
	materials   *material.Registry
	book        *purchase.Book
	vendors     receipt.VendorNamer
	audit       *audit.Writer
	log         *zap.Logger
	maxAttempts int
}

func NewEngine(rs store.RecordStore, materials *material.Registry, book *purchase.Book, vendors receipt.VendorNamer,
	aw *audit.Writer, log *zap.Logger, maxAttempts int) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		rs:          rs,
		materials:   materials,
		book:        book,
		vendors:     vendors,
		audit:       aw,
		log:         log,
		maxAttempts: maxAttempts,
	}
}

var _ receipt.Linker = (*Engine)(nil)

func receiptNotFound(id uuid.UUID) *apperr.Error {
	return apperr.NotFound("RECEIPT_NOT_FOUND", "receipt %s not found", id).With("receiptId", id)
}

func linkConflict(r *models.MaterialReceipt) *apperr.Error {
	return apperr.Conflict("RECEIPT_LINKED", "receipt %s is already linked to purchase %s", r.ID, *r.LinkedPurchaseID).
		With("receiptId", r.ID).
		With("linkedPurchaseId", *r.LinkedPurchaseID)
}

func (e *Engine) readReceipt(ctx context.Context, orgID, id uuid.UUID) (*models.MaterialReceipt, error) {
	var r models.MaterialReceipt
	err := store.ForOrganization(e.rs, orgID).ReadOne(ctx, &r, store.Filter{store.Eq("id", id)})
	if errors.Is(err, store.ErrNotFound) {
		return nil, receiptNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LinkReceiptToPurchase sets a receipt's link to a purchase and nothing else;
// the purchase totals are left to the submission that selected the receipt.
// Linking to the purchase it already belongs to succeeds without a write; a
// receipt held by another purchase is a RECEIPT_LINKED conflict and stays
// untouched. Outside a submission use AttachReceipt.
func (e *Engine) LinkReceiptToPurchase(ctx context.Context, orgID, receiptID, purchaseID uuid.UUID) (bool, error) {
	p, err := e.book.Get(ctx, orgID, purchaseID)
	if err != nil {
		return false, err
	}
	r, err := e.readReceipt(ctx, orgID, receiptID)
	if err != nil {
		return false, err
	}
	if r.MaterialID != p.MaterialID {
		return false, apperr.Validation("MATERIAL_MISMATCH", "receipt %s is for %s but purchase %s is for %s",
			r.ID, r.MaterialName, p.ID, p.MaterialName).
			With("receiptId", r.ID).
			With("purchaseId", p.ID)
	}
	return e.link(ctx, orgID, r, purchaseID)
}

// link performs the compare-and-set on linked_purchase_id. r is the caller's
// view of the receipt; the update itself decides races.
func (e *Engine) link(ctx context.Context, orgID uuid.UUID, r *models.MaterialReceipt, purchaseID uuid.UUID) (bool, error) {
	if r.LinkedPurchaseID != nil {
		if *r.LinkedPurchaseID == purchaseID {
			return true, nil
		}
		return false, linkConflict(r)
	}

	n, err := store.ForOrganization(e.rs, orgID).Update(ctx, &models.MaterialReceipt{},
		store.Filter{
			store.Eq("id", r.ID),
			store.Or(store.IsNull("linked_purchase_id"), store.Eq("linked_purchase_id", purchaseID)),
		},
		map[string]any{"linked_purchase_id": purchaseID})
	if err != nil {
		return false, fmt.Errorf("link receipt: %w", err)
	}
	if n == 0 {
		current, err := e.readReceipt(ctx, orgID, r.ID)
		if err != nil {
			return false, err
		}
		if current.LinkedPurchaseID != nil && *current.LinkedPurchaseID == purchaseID {
			return true, nil
		}
		if current.LinkedPurchaseID != nil {
			return false, linkConflict(current)
		}
		return false, fmt.Errorf("link receipt %s: no row updated", r.ID)
	}

	if _, err := e.book.SetLinkedReceipt(ctx, orgID, purchaseID, &r.ID, true); err != nil {
		e.log.Warn("failed to record representative receipt on purchase",
			zap.String("purchase_id", purchaseID.String()),
			zap.String("receipt_id", r.ID.String()),
			zap.Error(err))
	}

	e.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    r.ID,
		Action:      models.AuditActionLink,
		Description: fmt.Sprintf("receipt %s linked to purchase %s", r.VehicleNumber, purchaseID),
		After:       map[string]any{"linkedPurchaseId": purchaseID},
	})
	return true, nil
}

// release clears a receipt's link without touching the purchase totals. If
// the purchase used this receipt as its representative, the next receipt of
// its selection that is still linked takes its place.
func (e *Engine) release(ctx context.Context, orgID, receiptID uuid.UUID) error {
	r, err := e.readReceipt(ctx, orgID, receiptID)
	if err != nil {
		return err
	}
	if r.LinkedPurchaseID == nil {
		return nil
	}
	purchaseID := *r.LinkedPurchaseID

	n, err := store.ForOrganization(e.rs, orgID).Update(ctx, &models.MaterialReceipt{},
		store.Filter{store.Eq("id", r.ID), store.Eq("linked_purchase_id", purchaseID)},
		map[string]any{"linked_purchase_id": nil})
	if err != nil {
		return fmt.Errorf("unlink receipt: %w", err)
	}
	if n == 0 {
		// someone else changed the link in between; their state stands
		return nil
	}

	if err := e.repointPurchase(ctx, orgID, purchaseID, r.ID); err != nil {
		e.log.Warn("failed to re-point purchase after unlink",
			zap.String("purchase_id", purchaseID.String()),
			zap.String("receipt_id", r.ID.String()),
			zap.Error(err))
	}

	e.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    r.ID,
		Action:      models.AuditActionUnlink,
		Description: fmt.Sprintf("receipt %s unlinked from purchase %s", r.VehicleNumber, purchaseID),
		Before:      map[string]any{"linkedPurchaseId": purchaseID},
	})
	return nil
}

func (e *Engine) repointPurchase(ctx context.Context, orgID, purchaseID, removed uuid.UUID) error {
	p, err := e.book.Get(ctx, orgID, purchaseID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.LinkedReceiptID == nil || *p.LinkedReceiptID != removed {
		return nil
	}

	held, err := e.LinkedReceipts(ctx, orgID, purchaseID)
	if err != nil {
		return err
	}
	var replacement *uuid.UUID
	if order := selectionOrder(p, held); len(order) > 0 {
		replacement = &order[0]
	}
	_, err = e.book.SetLinkedReceipt(ctx, orgID, purchaseID, replacement, false)
	return err
}

// selectionOrder lists the held receipts in the order the purchase lines
// were submitted. Receipts without a line follow in date order.
func selectionOrder(p *models.Purchase, held []models.MaterialReceipt) []uuid.UUID {
	linked := make(map[uuid.UUID]bool, len(held))
	for _, r := range held {
		linked[r.ID] = true
	}
	out := make([]uuid.UUID, 0, len(held))
	for _, l := range p.Lines {
		if linked[l.ReceiptID] {
			out = append(out, l.ReceiptID)
			linked[l.ReceiptID] = false
		}
	}
	for _, r := range held {
		if linked[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out
}

// AttachReceipt adds a receipt to an existing purchase at rate and re-totals
// the purchase over its receipts. A receipt the purchase already holds is
// re-billed at rate, or left alone when rate is nil.
func (e *Engine) AttachReceipt(ctx context.Context, orgID, receiptID, purchaseID uuid.UUID, rate *decimal.Decimal) error {
	p, err := e.book.Get(ctx, orgID, purchaseID)
	if err != nil {
		return err
	}
	r, err := e.readReceipt(ctx, orgID, receiptID)
	if err != nil {
		return err
	}
	held, err := e.LinkedReceipts(ctx, orgID, purchaseID)
	if err != nil {
		return err
	}
	selection := selectionOrder(p, held)

	adding := r.LinkedPurchaseID == nil
	switch {
	case !adding && *r.LinkedPurchaseID != purchaseID:
		return linkConflict(r)
	case !adding && rate == nil:
		return nil
	case adding && r.MaterialID != p.MaterialID:
		return apperr.Validation("MATERIAL_MISMATCH", "receipt %s is for %s but purchase %s is for %s",
			r.ID, r.MaterialName, p.ID, p.MaterialName).
			With("receiptId", r.ID).
			With("purchaseId", p.ID)
	}
	if rate == nil || !rate.IsPositive() {
		return apperr.Validation("RATE_NOT_POSITIVE", "receipt %s needs a unit rate greater than zero", r.ID).
			With("receiptId", r.ID)
	}
	if adding {
		selection = append(selection, r.ID)
	}

	res, err := e.SubmitPurchase(ctx, orgID, Submission{
		PurchaseID: &purchaseID,
		ReceiptIDs: selection,
		Rates:      map[uuid.UUID]decimal.Decimal{r.ID: *rate},
	})
	if err != nil {
		return err
	}
	for _, f := range res.LinkFailures {
		if f.ReceiptID != r.ID {
			continue
		}
		// another purchase took the receipt first; total the purchase without it
		without := make([]uuid.UUID, 0, len(selection))
		for _, id := range selection {
			if id != r.ID {
				without = append(without, id)
			}
		}
		if _, err := e.SubmitPurchase(ctx, orgID, Submission{PurchaseID: &purchaseID, ReceiptIDs: without}); err != nil {
			e.log.Warn("failed to re-total purchase after a lost link",
				zap.String("purchase_id", purchaseID.String()),
				zap.String("receipt_id", r.ID.String()),
				zap.Error(err))
		}
		current, err := e.readReceipt(ctx, orgID, r.ID)
		if err != nil {
			return err
		}
		if current.LinkedPurchaseID != nil {
			return linkConflict(current)
		}
		return fmt.Errorf("link receipt %s: %s", r.ID, f.Reason)
	}
	return nil
}

// UnlinkReceipt releases a receipt from its purchase and re-totals the
// purchase over the receipts it keeps. The last receipt of a purchase stays
// linked; the purchase has to be deleted instead.
func (e *Engine) UnlinkReceipt(ctx context.Context, orgID, receiptID uuid.UUID) error {
	r, err := e.readReceipt(ctx, orgID, receiptID)
	if err != nil {
		return err
	}
	if r.LinkedPurchaseID == nil {
		return nil
	}
	purchaseID := *r.LinkedPurchaseID

	p, err := e.book.Get(ctx, orgID, purchaseID)
	if apperr.IsNotFound(err) {
		return e.release(ctx, orgID, r.ID)
	}
	if err != nil {
		return err
	}
	held, err := e.LinkedReceipts(ctx, orgID, purchaseID)
	if err != nil {
		return err
	}
	keep := make([]uuid.UUID, 0, len(held))
	for _, id := range selectionOrder(p, held) {
		if id != r.ID {
			keep = append(keep, id)
		}
	}
	if len(keep) == 0 {
		return apperr.Conflict("LAST_RECEIPT",
			"receipt %s is the only receipt of purchase %s; delete the purchase instead", r.ID, purchaseID).
			With("receiptId", r.ID).
			With("purchaseId", purchaseID)
	}

	res, err := e.SubmitPurchase(ctx, orgID, Submission{PurchaseID: &purchaseID, ReceiptIDs: keep})
	if err != nil {
		return err
	}
	if len(res.UnlinkErrors) > 0 {
		return res.UnlinkErrors[0]
	}
	return nil
}

// LinkedReceipts returns the receipts currently linked to a purchase.
func (e *Engine) LinkedReceipts(ctx context.Context, orgID, purchaseID uuid.UUID) ([]models.MaterialReceipt, error) {
	out := []models.MaterialReceipt{}
	if err := store.ForOrganization(e.rs, orgID).Read(ctx, &out,
		store.Filter{store.Eq("linked_purchase_id", purchaseID)},
		store.OrderBy("date ASC, created_at ASC")); err != nil {
		return nil, err
	}
	return out, nil
}

// Rollup sums the derived consumed/remaining figures of a material's purchases.
func Rollup(purchases []models.Purchase) material.Snapshot {
	s := material.Snapshot{Remaining: decimal.Zero, Consumed: decimal.Zero}
	for i := range purchases {
		consumed, remaining := purchase.Derive(&purchases[i])
		s.Consumed = s.Consumed.Add(consumed)
		s.Remaining = s.Remaining.Add(remaining)
	}
	return s
}

// SyncMaterialMaster recomputes a material's stock from every purchase of it
// and writes the result against the version it read. A concurrent writer
// forces a fresh re-scan, up to maxAttempts in total.
func (e *Engine) SyncMaterialMaster(ctx context.Context, orgID, materialID uuid.UUID) (material.Snapshot, error) {
	var snap material.Snapshot
	for attempt := 1; ; attempt++ {
		m, err := e.materials.Read(ctx, orgID, materialID)
		if err != nil {
			return snap, err
		}
		purchases, err := e.book.ListByMaterial(ctx, orgID, materialID)
		if err != nil {
			return snap, err
		}

		snap = Rollup(purchases).Clamped()
		if snap.Equal(material.Snapshot{Remaining: m.Quantity, Consumed: m.ConsumedQuantity}) {
			return snap, nil
		}

		err = e.materials.ApplyStockSnapshotAt(ctx, orgID, materialID, snap, m.Version)
		if err == nil {
			e.log.Debug("material stock synced",
				zap.String("material_id", materialID.String()),
				zap.String("remaining", snap.Remaining.String()),
				zap.String("consumed", snap.Consumed.String()),
				zap.Int("attempt", attempt))
			return snap, nil
		}
		if !apperr.IsConflict(err) || attempt >= e.maxAttempts {
			return snap, err
		}
		e.log.Info("material stock changed during sync, retrying",
			zap.String("material_id", materialID.String()),
			zap.Int("attempt", attempt))
	}
}

// syncBestEffort runs the rollup and turns a failure into a warning; the
// purchase record stays authoritative and the snapshot can be re-synced later.
func (e *Engine) syncBestEffort(ctx context.Context, orgID, materialID uuid.UUID) error {
	if _, err := e.SyncMaterialMaster(ctx, orgID, materialID); err != nil {
		e.log.Warn("material stock sync failed",
			zap.String("organization_id", orgID.String()),
			zap.String("material_id", materialID.String()),
			zap.Error(err))
		return err
	}
	return nil
}
