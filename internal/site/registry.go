// Package site manages the construction sites receipts are delivered to.
package site

import (
	"context"
	"errors"
	"strings"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
)

type Registry struct {
	rs    store.RecordStore
	audit *audit.Writer
}

func NewRegistry(rs store.RecordStore, aw *audit.Writer) *Registry {
	return &Registry{rs: rs, audit: aw}
}

type Input struct {
	Name     string
	Address  string
	IsActive *bool
}

type Patch struct {
	Name     *string
	Address  *string
	IsActive *bool
}

func (r *Registry) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.Site, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("SITE_NAME_REQUIRED", "site name is required")
	}
	s := &models.Site{Name: name, Address: strings.TrimSpace(in.Address), IsActive: true}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	if err := store.ForOrganization(r.rs, orgID).Insert(ctx, s); err != nil {
		return nil, err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntitySite,
		EntityID:    s.ID,
		Action:      models.AuditActionCreate,
		Description: "site " + s.Name + " created",
		After:       s,
	})
	return s, nil
}

func (r *Registry) List(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]models.Site, error) {
	var f store.Filter
	if activeOnly {
		f = f.And(store.Eq("is_active", true))
	}
	sites := []models.Site{}
	err := store.ForOrganization(r.rs, orgID).Read(ctx, &sites, f, store.OrderBy("name asc"))
	return sites, err
}

func (r *Registry) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Site, error) {
	var s models.Site
	err := store.ForOrganization(r.rs, orgID).ReadOne(ctx, &s, store.Filter{store.Eq("id", id)})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("SITE_NOT_FOUND", "site %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Registry) Update(ctx context.Context, orgID, id uuid.UUID, p Patch) (*models.Site, error) {
	before, err := r.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Validation("SITE_NAME_REQUIRED", "site name cannot be empty")
		}
		patch["name"] = name
	}
	if p.Address != nil {
		patch["address"] = strings.TrimSpace(*p.Address)
	}
	if p.IsActive != nil {
		patch["is_active"] = *p.IsActive
	}
	if len(patch) == 0 {
		return before, nil
	}

	if _, err := store.ForOrganization(r.rs, orgID).Update(ctx, &models.Site{}, store.Filter{store.Eq("id", id)}, patch); err != nil {
		return nil, err
	}
	after, err := r.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntitySite,
		EntityID:    id,
		Action:      models.AuditActionUpdate,
		Description: "site " + after.Name + " updated",
		Before:      before,
		After:       after,
	})
	return after, nil
}

// Delete refuses sites that receipts still point at; deactivate those instead.
func (r *Registry) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	s, err := r.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	tenant := store.ForOrganization(r.rs, orgID)

	var used []models.MaterialReceipt
	if err := tenant.Read(ctx, &used, store.Filter{store.Eq("site_id", id.String())}, store.Limit(1)); err != nil {
		return err
	}
	if len(used) > 0 {
		return apperr.Conflict("SITE_IN_USE", "site %s has material receipts", s.Name).With("siteId", id)
	}

	if _, err := tenant.Delete(ctx, &models.Site{}, store.Filter{store.Eq("id", id)}); err != nil {
		return err
	}
	r.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntitySite,
		EntityID:    id,
		Action:      models.AuditActionDelete,
		Description: "site " + s.Name + " deleted",
		Before:      s,
	})
	return nil
}

// ResolveName maps a site reference from a request to its display name.
// The unallocated sentinel resolves without a lookup.
func (r *Registry) ResolveName(ctx context.Context, orgID uuid.UUID, siteID string) (string, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return "", apperr.Validation("SITE_REQUIRED", "site is required")
	}
	if siteID == models.UnallocatedSiteID {
		return models.UnallocatedSiteName, nil
	}

	id, err := uuid.Parse(siteID)
	if err != nil {
		return "", apperr.Validation("UNKNOWN_SITE", "site %q does not exist", siteID)
	}
	s, err := r.Get(ctx, orgID, id)
	if apperr.IsNotFound(err) {
		return "", apperr.Validation("UNKNOWN_SITE", "site %q does not exist", siteID)
	}
	if err != nil {
		return "", err
	}
	return s.Name, nil
}
