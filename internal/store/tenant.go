package store

import (
	"context"

	"github.com/google/uuid"
)

// TenantOwned rows get their organization id stamped on insert.
type TenantOwned interface {
	SetOrganizationID(id uuid.UUID)
}

type tenantStore struct {
	inner RecordStore
	orgID uuid.UUID
}

// ForOrganization scopes every filter of rs to one organization.
func ForOrganization(rs RecordStore, orgID uuid.UUID) RecordStore {
	return &tenantStore{inner: rs, orgID: orgID}
}

func (t *tenantStore) scope(f Filter) Filter {
	out := make(Filter, 0, len(f)+1)
	out = append(out, Eq("organization_id", t.orgID))
	return append(out, f...)
}

func (t *tenantStore) Read(ctx context.Context, dest any, f Filter, opts ...ReadOption) error {
	return t.inner.Read(ctx, dest, t.scope(f), opts...)
}

func (t *tenantStore) ReadOne(ctx context.Context, dest any, f Filter, opts ...ReadOption) error {
	return t.inner.ReadOne(ctx, dest, t.scope(f), opts...)
}

func (t *tenantStore) Insert(ctx context.Context, row any) error {
	if owned, ok := row.(TenantOwned); ok {
		owned.SetOrganizationID(t.orgID)
	}
	return t.inner.Insert(ctx, row)
}

func (t *tenantStore) Update(ctx context.Context, model any, f Filter, patch map[string]any) (int64, error) {
	if len(f) == 0 {
		return 0, ErrUnscopedWrite
	}
	return t.inner.Update(ctx, model, t.scope(f), patch)
}

func (t *tenantStore) Delete(ctx context.Context, model any, f Filter) (int64, error) {
	if len(f) == 0 {
		return 0, ErrUnscopedWrite
	}
	return t.inner.Delete(ctx, model, t.scope(f))
}

func (t *tenantStore) InTx(ctx context.Context, fn func(tx RecordStore) error) error {
	return t.inner.InTx(ctx, func(tx RecordStore) error {
		return fn(&tenantStore{inner: tx, orgID: t.orgID})
	})
}
