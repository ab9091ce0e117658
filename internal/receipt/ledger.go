// Package receipt records weighbridge goods-in events and keeps their
// derived fields (net weight, quantity, denormalized names) consistent.
// Link state is owned by the reconcile package.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/material"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/quantity"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MaterialReader interface {
	Read(ctx context.Context, orgID, id uuid.UUID) (*models.MaterialMaster, error)
}

type VendorNamer interface {
	ResolveName(ctx context.Context, orgID uuid.UUID, id *uuid.UUID) (string, error)
}

type Ledger struct {
	rs        store.RecordStore
	materials MaterialReader
	sites     material.SiteNamer
	vendors   VendorNamer
	audit     *audit.Writer
	log       *zap.Logger
}

func NewLedger(rs store.RecordStore, materials MaterialReader, sites material.SiteNamer, vendors VendorNamer, aw *audit.Writer, log *zap.Logger) *Ledger {
	return &Ledger{rs: rs, materials: materials, sites: sites, vendors: vendors, audit: aw, log: log}
}

type Input struct {
	Date          time.Time
	VehicleNumber string
	MaterialID    uuid.UUID
	FilledWeight  decimal.Decimal
	EmptyWeight   decimal.Decimal
	Quantity      quantity.Optional
	VendorID      *uuid.UUID
	SiteID        string
	ChallanNumber string
	Remarks       string
}

// Patch holds the fields an update changes; nil means unchanged.
type Patch struct {
	Date          *time.Time
	VehicleNumber *string
	MaterialID    *uuid.UUID
	FilledWeight  *decimal.Decimal
	EmptyWeight   *decimal.Decimal
	Quantity      quantity.Optional
	VendorID      *uuid.UUID
	ClearVendor   bool
	SiteID        *string
	ChallanNumber *string
	Remarks       *string
}

type ListFilter struct {
	VendorID     *uuid.UUID
	SiteID       string
	MaterialID   *uuid.UUID
	UnlinkedOnly bool
	// AvailableFor lists receipts a purchase may select: unlinked ones plus
	// those already linked to it.
	AvailableFor *uuid.UUID
	From         *time.Time
	To           *time.Time
	Limit        int
}

// NetWeight validates a weighbridge pair and returns filled minus empty.
func NetWeight(filled, empty decimal.Decimal) (decimal.Decimal, error) {
	if !filled.IsPositive() {
		return decimal.Zero, apperr.Validation("FILLED_WEIGHT_NOT_POSITIVE", "filled weight must be greater than zero")
	}
	if empty.IsNegative() {
		return decimal.Zero, apperr.Validation("EMPTY_WEIGHT_NEGATIVE", "empty weight cannot be negative")
	}
	net := filled.Sub(empty)
	if net.IsNegative() {
		return decimal.Zero, apperr.Validation("NEGATIVE_NET_WEIGHT",
			"net weight is negative: filled %s is less than empty %s", filled, empty).
			With("filledWeight", filled).
			With("emptyWeight", empty)
	}
	return net, nil
}

// DefaultQuantity resolves the quantity of a new receipt: an explicit value
// wins, otherwise the net weight rounded to two places.
func DefaultQuantity(net decimal.Decimal, q quantity.Optional) (decimal.Decimal, error) {
	out := quantity.Round2(net)
	if v, ok := q.Value(); ok {
		out = v
	}
	if !out.IsPositive() {
		return decimal.Zero, apperr.Validation("QUANTITY_NOT_POSITIVE", "quantity must be greater than zero")
	}
	return out, nil
}

// UpdatedQuantity applies the edit rule: a set value wins, a cleared field
// follows the new net weight, and an untouched field follows the new net
// weight only while the stored quantity still equals the old net weight.
func UpdatedQuantity(stored, oldNet, newNet decimal.Decimal, q quantity.Optional) (decimal.Decimal, error) {
	out := stored
	switch {
	case !q.IsAbsent():
		return DefaultQuantity(newNet, q)
	case quantity.Near(stored, oldNet):
		out = quantity.Round2(newNet)
	}
	if !out.IsPositive() {
		return decimal.Zero, apperr.Validation("QUANTITY_NOT_POSITIVE", "quantity must be greater than zero")
	}
	return out, nil
}

func (l *Ledger) materialName(ctx context.Context, orgID, id uuid.UUID) (string, error) {
	m, err := l.materials.Read(ctx, orgID, id)
	if apperr.IsNotFound(err) {
		return "", apperr.Validation("UNKNOWN_MATERIAL", "material %s does not exist", id)
	}
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

// build validates an input and resolves its names without persisting it.
func (l *Ledger) build(ctx context.Context, orgID uuid.UUID, in Input) (*models.MaterialReceipt, error) {
	net, err := NetWeight(in.FilledWeight, in.EmptyWeight)
	if err != nil {
		return nil, err
	}
	qty, err := DefaultQuantity(net, in.Quantity)
	if err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, apperr.Validation("DATE_REQUIRED", "receipt date is required")
	}
	vehicle := strings.ToUpper(strings.TrimSpace(in.VehicleNumber))
	if vehicle == "" {
		return nil, apperr.Validation("VEHICLE_REQUIRED", "vehicle number is required")
	}

	materialName, err := l.materialName(ctx, orgID, in.MaterialID)
	if err != nil {
		return nil, err
	}
	siteName, err := l.sites.ResolveName(ctx, orgID, in.SiteID)
	if err != nil {
		return nil, err
	}
	vendorName, err := l.vendors.ResolveName(ctx, orgID, in.VendorID)
	if err != nil {
		return nil, err
	}

	return &models.MaterialReceipt{
		Date:          in.Date,
		VehicleNumber: vehicle,
		MaterialID:    in.MaterialID,
		MaterialName:  materialName,
		FilledWeight:  in.FilledWeight,
		EmptyWeight:   in.EmptyWeight,
		NetWeight:     net,
		Quantity:      qty,
		VendorID:      in.VendorID,
		VendorName:    vendorName,
		SiteID:        strings.TrimSpace(in.SiteID),
		SiteName:      siteName,
		ChallanNumber: strings.TrimSpace(in.ChallanNumber),
		Remarks:       strings.TrimSpace(in.Remarks),
	}, nil
}

func (l *Ledger) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.MaterialReceipt, error) {
	r, err := l.build(ctx, orgID, in)
	if err != nil {
		return nil, err
	}
	if err := store.ForOrganization(l.rs, orgID).Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}
	l.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    r.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("receipt %s for %s %s", r.VehicleNumber, r.Quantity, r.MaterialName),
		After:       r,
	})
	return r, nil
}

func (l *Ledger) load(ctx context.Context, orgID, id uuid.UUID) (*models.MaterialReceipt, error) {
	var r models.MaterialReceipt
	err := store.ForOrganization(l.rs, orgID).ReadOne(ctx, &r, store.Filter{store.Eq("id", id)})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("RECEIPT_NOT_FOUND", "material receipt %s not found", id).With("receiptId", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (l *Ledger) Get(ctx context.Context, orgID, id uuid.UUID) (*models.MaterialReceipt, error) {
	r, err := l.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	rows := []models.MaterialReceipt{*r}
	l.refreshNames(ctx, orgID, rows)
	return &rows[0], nil
}

func (l *Ledger) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.MaterialReceipt, error) {
	var filter store.Filter
	if f.VendorID != nil {
		filter = filter.And(store.Eq("vendor_id", *f.VendorID))
	}
	if f.SiteID != "" {
		filter = filter.And(store.Eq("site_id", f.SiteID))
	}
	if f.MaterialID != nil {
		filter = filter.And(store.Eq("material_id", *f.MaterialID))
	}
	switch {
	case f.AvailableFor != nil:
		filter = filter.And(store.Or(store.IsNull("linked_purchase_id"), store.Eq("linked_purchase_id", *f.AvailableFor)))
	case f.UnlinkedOnly:
		filter = filter.And(store.IsNull("linked_purchase_id"))
	}
	if f.From != nil {
		filter = filter.And(store.Gte("date", *f.From))
	}
	if f.To != nil {
		filter = filter.And(store.Lte("date", *f.To))
	}

	opts := []store.ReadOption{store.OrderBy("date desc, created_at desc")}
	if f.Limit > 0 {
		opts = append(opts, store.Limit(f.Limit))
	}

	rows := []models.MaterialReceipt{}
	if err := store.ForOrganization(l.rs, orgID).Read(ctx, &rows, filter, opts...); err != nil {
		return nil, err
	}
	l.refreshNames(ctx, orgID, rows)
	return rows, nil
}

// refreshNames re-syncs materialName from the current catalog so a renamed
// material never shows a stale name. Persisting the fix is best-effort.
func (l *Ledger) refreshNames(ctx context.Context, orgID uuid.UUID, rows []models.MaterialReceipt) {
	if len(rows) == 0 {
		return
	}
	seen := map[uuid.UUID]struct{}{}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.MaterialID]; !ok {
			seen[r.MaterialID] = struct{}{}
			ids = append(ids, r.MaterialID)
		}
	}

	tenant := store.ForOrganization(l.rs, orgID)
	var masters []models.MaterialMaster
	if err := tenant.Read(ctx, &masters, store.Filter{store.In("id", ids)}); err != nil {
		l.log.Warn("material name refresh skipped", zap.Error(err))
		return
	}
	names := make(map[uuid.UUID]string, len(masters))
	for _, m := range masters {
		names[m.ID] = m.Name
	}

	stale := map[uuid.UUID]string{}
	for i := range rows {
		name, ok := names[rows[i].MaterialID]
		if !ok || name == rows[i].MaterialName {
			continue
		}
		rows[i].MaterialName = name
		stale[rows[i].MaterialID] = name
	}
	for materialID, name := range stale {
		_, err := tenant.Update(ctx, &models.MaterialReceipt{},
			store.Filter{store.Eq("material_id", materialID), store.Where("material_name <> ?", name)},
			map[string]any{"material_name": name})
		if err != nil {
			l.log.Warn("stale material name not persisted",
				zap.String("material_id", materialID.String()), zap.Error(err))
		}
	}
}

func (l *Ledger) Update(ctx context.Context, orgID, id uuid.UUID, p Patch) (*models.MaterialReceipt, error) {
	before, err := l.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	filled, empty := before.FilledWeight, before.EmptyWeight
	if p.FilledWeight != nil {
		filled = *p.FilledWeight
	}
	if p.EmptyWeight != nil {
		empty = *p.EmptyWeight
	}
	net, err := NetWeight(filled, empty)
	if err != nil {
		return nil, err
	}
	qty, err := UpdatedQuantity(before.Quantity, before.NetWeight, net, p.Quantity)
	if err != nil {
		return nil, err
	}
	// a purchase is totalled over its receipts' quantities
	if before.IsLinked() && !qty.Equal(before.Quantity) {
		return nil, linkedConflict(before, "unlink the receipt before changing its quantity")
	}

	patch := map[string]any{
		"filled_weight": filled,
		"empty_weight":  empty,
		"net_weight":    net,
		"quantity":      qty,
	}

	if p.Date != nil {
		if p.Date.IsZero() {
			return nil, apperr.Validation("DATE_REQUIRED", "receipt date is required")
		}
		patch["date"] = *p.Date
	}
	if p.VehicleNumber != nil {
		vehicle := strings.ToUpper(strings.TrimSpace(*p.VehicleNumber))
		if vehicle == "" {
			return nil, apperr.Validation("VEHICLE_REQUIRED", "vehicle number is required")
		}
		patch["vehicle_number"] = vehicle
	}

	materialID := before.MaterialID
	if p.MaterialID != nil && *p.MaterialID != before.MaterialID {
		if before.IsLinked() {
			return nil, linkedConflict(before, "unlink the receipt before changing its material")
		}
		materialID = *p.MaterialID
		patch["material_id"] = materialID
	}
	// the name is re-synced on every update, even when the material is unchanged
	name, err := l.materialName(ctx, orgID, materialID)
	if err != nil {
		return nil, err
	}
	patch["material_name"] = name

	switch {
	case p.ClearVendor:
		patch["vendor_id"] = nil
		patch["vendor_name"] = ""
	case p.VendorID != nil:
		vendorName, err := l.vendors.ResolveName(ctx, orgID, p.VendorID)
		if err != nil {
			return nil, err
		}
		patch["vendor_id"] = *p.VendorID
		patch["vendor_name"] = vendorName
	}
	if p.SiteID != nil {
		siteName, err := l.sites.ResolveName(ctx, orgID, *p.SiteID)
		if err != nil {
			return nil, err
		}
		patch["site_id"] = strings.TrimSpace(*p.SiteID)
		patch["site_name"] = siteName
	}
	if p.ChallanNumber != nil {
		patch["challan_number"] = strings.TrimSpace(*p.ChallanNumber)
	}
	if p.Remarks != nil {
		patch["remarks"] = strings.TrimSpace(*p.Remarks)
	}

	if _, err := store.ForOrganization(l.rs, orgID).Update(ctx, &models.MaterialReceipt{},
		store.Filter{store.Eq("id", id)}, patch); err != nil {
		return nil, fmt.Errorf("update receipt: %w", err)
	}

	after, err := l.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	l.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    id,
		Action:      models.AuditActionUpdate,
		Description: "receipt " + after.VehicleNumber + " updated",
		Before:      before,
		After:       after,
	})
	return after, nil
}

func linkedConflict(r *models.MaterialReceipt, msg string) *apperr.Error {
	return apperr.Conflict("RECEIPT_LINKED", "receipt %s is linked to purchase %s: %s", r.ID, *r.LinkedPurchaseID, msg).
		With("receiptId", r.ID).
		With("linkedPurchaseId", *r.LinkedPurchaseID)
}

// Delete removes an unlinked receipt. A linked receipt must be unlinked first.
func (l *Ledger) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	r, err := l.load(ctx, orgID, id)
	if err != nil {
		return err
	}
	if r.IsLinked() {
		return linkedConflict(r, "unlink it before deleting")
	}

	// the IS NULL guard closes the gap between the read above and the delete
	n, err := store.ForOrganization(l.rs, orgID).Delete(ctx, &models.MaterialReceipt{},
		store.Filter{store.Eq("id", id), store.IsNull("linked_purchase_id")})
	if err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	if n == 0 {
		current, err := l.load(ctx, orgID, id)
		if err != nil {
			return err
		}
		if current.IsLinked() {
			return linkedConflict(current, "unlink it before deleting")
		}
	}

	l.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    id,
		Action:      models.AuditActionDelete,
		Description: "receipt " + r.VehicleNumber + " deleted",
		Before:      r,
	})
	return nil
}

// CurrentOpeningBalance is advisory display data for the receipt form.
func (l *Ledger) CurrentOpeningBalance(ctx context.Context, orgID, materialID uuid.UUID, siteID string) (*decimal.Decimal, error) {
	m, err := l.materials.Read(ctx, orgID, materialID)
	if err != nil {
		return nil, err
	}
	return material.OpeningBalance(m, siteID), nil
}
