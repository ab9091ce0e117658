// Package material owns the material catalog and each material's stock
// snapshot (remaining and consumed quantity across all purchases).
package material

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is the derived stock state written back after a rollup.
type Snapshot struct {
	Remaining decimal.Decimal `json:"remaining"`
	Consumed  decimal.Decimal `json:"consumed"`
}

// Clamped returns the snapshot with negative figures raised to zero.
func (s Snapshot) Clamped() Snapshot {
	return Snapshot{
		Remaining: decimal.Max(s.Remaining, decimal.Zero),
		Consumed:  decimal.Max(s.Consumed, decimal.Zero),
	}
}

func (s Snapshot) Equal(o Snapshot) bool {
	return s.Remaining.Equal(o.Remaining) && s.Consumed.Equal(o.Consumed)
}

// SiteNamer resolves a site reference to its display name.
type SiteNamer interface {
	ResolveName(ctx context.Context, orgID uuid.UUID, siteID string) (string, error)
}

type Registry struct {
	rs    store.RecordStore
	sites SiteNamer
	audit *audit.Writer
}

func NewRegistry(rs store.RecordStore, sites SiteNamer, aw *audit.Writer) *Registry {
	return &Registry{rs: rs, sites: sites, audit: aw}
}

func notFound(id uuid.UUID) *apperr.Error {
	return apperr.NotFound("MATERIAL_NOT_FOUND", "material %s not found", id).With("materialId", id)
}

func (r *Registry) Read(ctx context.Context, orgID, id uuid.UUID) (*models.MaterialMaster, error) {
	var m models.MaterialMaster
	err := store.ForOrganization(r.rs, orgID).ReadOne(ctx, &m, store.Filter{store.Eq("id", id)},
		store.Preload("SiteAllocations"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func snapshotOf(m *models.MaterialMaster) Snapshot {
	return Snapshot{Remaining: m.Quantity, Consumed: m.ConsumedQuantity}
}

func snapshotPatch(s Snapshot) map[string]any {
	return map[string]any{
		"quantity":          s.Remaining,
		"consumed_quantity": s.Consumed,
		"version":           store.Increment("version"),
	}
}

// ApplyStockSnapshot writes the clamped remaining/consumed figures and
// nothing else. Writing a snapshot equal to the stored one is a no-op, so
// the version only moves when the stock changes.
func (r *Registry) ApplyStockSnapshot(ctx context.Context, orgID, id uuid.UUID, s Snapshot) error {
	s = s.Clamped()

	m, err := r.Read(ctx, orgID, id)
	if err != nil {
		return err
	}
	if snapshotOf(m).Equal(s) {
		return nil
	}

	n, err := store.ForOrganization(r.rs, orgID).Update(ctx, &models.MaterialMaster{},
		store.Filter{store.Eq("id", id)}, snapshotPatch(s))
	if err != nil {
		return fmt.Errorf("apply stock snapshot: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// ApplyStockSnapshotAt is ApplyStockSnapshot guarded by the version the
// caller computed against. A concurrent write yields a STALE_SNAPSHOT conflict.
func (r *Registry) ApplyStockSnapshotAt(ctx context.Context, orgID, id uuid.UUID, s Snapshot, expectedVersion int) error {
	s = s.Clamped()
	tenant := store.ForOrganization(r.rs, orgID)

	n, err := tenant.Update(ctx, &models.MaterialMaster{},
		store.Filter{store.Eq("id", id), store.Eq("version", expectedVersion)}, snapshotPatch(s))
	if err != nil {
		return fmt.Errorf("apply stock snapshot: %w", err)
	}
	if n > 0 {
		return nil
	}

	m, err := r.Read(ctx, orgID, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("STALE_SNAPSHOT", "material %s changed since version %d", m.Name, expectedVersion).
		With("materialId", id).
		With("currentVersion", m.Version)
}

// OpeningBalance is the advisory starting stock for a site: the
// organization-level figure for the unallocated sentinel, otherwise the
// matching site allocation. Nil when none is recorded.
func OpeningBalance(m *models.MaterialMaster, siteID string) *decimal.Decimal {
	if m == nil {
		return nil
	}
	if siteID == models.UnallocatedSiteID {
		if !m.OpeningBalance.Valid {
			return nil
		}
		ob := m.OpeningBalance.Decimal
		return &ob
	}
	for _, a := range m.SiteAllocations {
		if a.SiteID == siteID {
			q := a.Quantity
			return &q
		}
	}
	return nil
}

type AllocationInput struct {
	SiteID   string
	Quantity decimal.Decimal
}

type CreateInput struct {
	Name            string
	Category        models.MaterialCategory
	Unit            string
	StandardRate    decimal.Decimal
	IsActive        *bool
	OpeningBalance  *decimal.Decimal
	SiteAllocations []AllocationInput
}

type UpdateInput struct {
	Name                *string
	Category            *models.MaterialCategory
	Unit                *string
	StandardRate        *decimal.Decimal
	IsActive            *bool
	OpeningBalance      *decimal.Decimal
	ClearOpeningBalance bool
}

type ListFilter struct {
	Category   models.MaterialCategory
	ActiveOnly bool
	Search     string
}

func validateCatalog(name string, category models.MaterialCategory, unit string, rate decimal.Decimal) error {
	if name == "" {
		return apperr.Validation("MATERIAL_NAME_REQUIRED", "material name is required")
	}
	if !category.Valid() {
		return apperr.Validation("INVALID_CATEGORY", "unknown material category %q", category)
	}
	if unit == "" {
		return apperr.Validation("MATERIAL_UNIT_REQUIRED", "material unit is required")
	}
	if rate.IsNegative() {
		return apperr.Validation("NEGATIVE_RATE", "standard rate cannot be negative")
	}
	return nil
}

func (r *Registry) buildAllocations(ctx context.Context, orgID uuid.UUID, in []AllocationInput) ([]models.MaterialSiteAllocation, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.MaterialSiteAllocation, 0, len(in))
	for _, a := range in {
		siteID := strings.TrimSpace(a.SiteID)
		if siteID == models.UnallocatedSiteID {
			return nil, apperr.Validation("UNALLOCATED_ALLOCATION",
				"use the opening balance for unallocated stock, not a site allocation")
		}
		if _, dup := seen[siteID]; dup {
			return nil, apperr.Validation("DUPLICATE_SITE_ALLOCATION", "site %s is allocated twice", siteID).
				With("siteId", siteID)
		}
		seen[siteID] = struct{}{}
		if a.Quantity.IsNegative() {
			return nil, apperr.Validation("NEGATIVE_ALLOCATION", "allocation for site %s is negative", siteID)
		}
		name, err := r.sites.ResolveName(ctx, orgID, siteID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.MaterialSiteAllocation{SiteID: siteID, SiteName: name, Quantity: a.Quantity})
	}
	return out, nil
}

func (r *Registry) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (*models.MaterialMaster, error) {
	name := strings.TrimSpace(in.Name)
	unit := strings.TrimSpace(in.Unit)
	if err := validateCatalog(name, in.Category, unit, in.StandardRate); err != nil {
		return nil, err
	}
	if in.OpeningBalance != nil && in.OpeningBalance.IsNegative() {
		return nil, apperr.Validation("NEGATIVE_OPENING_BALANCE", "opening balance cannot be negative")
	}
	allocations, err := r.buildAllocations(ctx, orgID, in.SiteAllocations)
	if err != nil {
		return nil, err
	}

	m := &models.MaterialMaster{
		Name:         name,
		Category:     in.Category,
		Unit:         unit,
		StandardRate: in.StandardRate.Round(2),
		IsActive:     true,
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if in.OpeningBalance != nil {
		m.OpeningBalance = decimal.NewNullDecimal(*in.OpeningBalance)
	}

	err = store.ForOrganization(r.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		if err := tx.Insert(ctx, m); err != nil {
			return err
		}
		for i := range allocations {
			allocations[i].MaterialID = m.ID
			if err := tx.Insert(ctx, &allocations[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create material: %w", err)
	}

	created, err := r.Read(ctx, orgID, m.ID)
	if err != nil {
		return nil, err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialMaster,
		EntityID:    created.ID,
		Action:      models.AuditActionCreate,
		Description: "material " + created.Name + " created",
		After:       created,
	})
	return created, nil
}

func (r *Registry) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.MaterialMaster, error) {
	var filter store.Filter
	if f.Category != "" {
		filter = filter.And(store.Eq("category", f.Category))
	}
	if f.ActiveOnly {
		filter = filter.And(store.Eq("is_active", true))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		filter = filter.And(store.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%"))
	}

	out := []models.MaterialMaster{}
	err := store.ForOrganization(r.rs, orgID).Read(ctx, &out, filter,
		store.OrderBy("name asc"), store.Preload("SiteAllocations"))
	return out, err
}

// Update edits catalog fields. Stock figures are never written here.
func (r *Registry) Update(ctx context.Context, orgID, id uuid.UUID, in UpdateInput) (*models.MaterialMaster, error) {
	before, err := r.Read(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	name, category, unit, rate := before.Name, before.Category, before.Unit, before.StandardRate
	patch := map[string]any{}
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		patch["name"] = name
	}
	if in.Category != nil {
		category = *in.Category
		patch["category"] = category
	}
	if in.Unit != nil {
		unit = strings.TrimSpace(*in.Unit)
		patch["unit"] = unit
	}
	if in.StandardRate != nil {
		rate = in.StandardRate.Round(2)
		patch["standard_rate"] = rate
	}
	if in.IsActive != nil {
		patch["is_active"] = *in.IsActive
	}
	switch {
	case in.ClearOpeningBalance:
		patch["opening_balance"] = nil
	case in.OpeningBalance != nil:
		if in.OpeningBalance.IsNegative() {
			return nil, apperr.Validation("NEGATIVE_OPENING_BALANCE", "opening balance cannot be negative")
		}
		patch["opening_balance"] = *in.OpeningBalance
	}
	if err := validateCatalog(name, category, unit, rate); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return before, nil
	}

	if _, err := store.ForOrganization(r.rs, orgID).Update(ctx, &models.MaterialMaster{},
		store.Filter{store.Eq("id", id)}, patch); err != nil {
		return nil, fmt.Errorf("update material: %w", err)
	}

	after, err := r.Read(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialMaster,
		EntityID:    id,
		Action:      models.AuditActionUpdate,
		Description: "material " + after.Name + " updated",
		Before:      before,
		After:       after,
	})
	return after, nil
}

// SetSiteAllocations replaces the per-site opening balances of a material.
func (r *Registry) SetSiteAllocations(ctx context.Context, orgID, id uuid.UUID, in []AllocationInput) (*models.MaterialMaster, error) {
	before, err := r.Read(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	allocations, err := r.buildAllocations(ctx, orgID, in)
	if err != nil {
		return nil, err
	}

	err = store.ForOrganization(r.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		if _, err := tx.Delete(ctx, &models.MaterialSiteAllocation{}, store.Filter{store.Eq("material_id", id)}); err != nil {
			return err
		}
		for i := range allocations {
			allocations[i].MaterialID = id
			if err := tx.Insert(ctx, &allocations[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set site allocations: %w", err)
	}

	after, err := r.Read(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialMaster,
		EntityID:    id,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("site allocations of %s set (%d sites)", after.Name, len(allocations)),
		Before:      before.SiteAllocations,
		After:       after.SiteAllocations,
	})
	return after, nil
}

// Delete removes a catalog entry that no receipt or purchase refers to.
func (r *Registry) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	m, err := r.Read(ctx, orgID, id)
	if err != nil {
		return err
	}
	tenant := store.ForOrganization(r.rs, orgID)
	byMaterial := store.Filter{store.Eq("material_id", id)}

	var receipts []models.MaterialReceipt
	if err := tenant.Read(ctx, &receipts, byMaterial, store.Limit(1)); err != nil {
		return err
	}
	var purchases []models.Purchase
	if err := tenant.Read(ctx, &purchases, byMaterial, store.Limit(1)); err != nil {
		return err
	}
	if len(receipts) > 0 || len(purchases) > 0 {
		return apperr.Conflict("MATERIAL_IN_USE", "material %s has receipts or purchases, deactivate it instead", m.Name).
			With("materialId", id)
	}

	err = tenant.InTx(ctx, func(tx store.RecordStore) error {
		if _, err := tx.Delete(ctx, &models.MaterialSiteAllocation{}, byMaterial); err != nil {
			return err
		}
		_, err := tx.Delete(ctx, &models.MaterialMaster{}, store.Filter{store.Eq("id", id)})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialMaster,
		EntityID:    id,
		Action:      models.AuditActionDelete,
		Description: "material " + m.Name + " deleted",
		Before:      m,
	})
	return nil
}
