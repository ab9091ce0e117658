package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	EntityMaterialReceipt = "material_receipt"
	EntityPurchase        = "purchase"
	EntityMaterialMaster  = "material_master"
	EntitySite            = "site"
	EntityVendor          = "vendor"
)

type LogOptions struct {
	EntityType  string
	EntityID    uuid.UUID
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Writer appends audit entries; the acting user is taken from the context.
type Writer struct {
	rs  store.RecordStore
	log *zap.Logger
}

func NewWriter(rs store.RecordStore, log *zap.Logger) *Writer {
	return &Writer{rs: rs, log: log}
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func (w *Writer) WriteLog(ctx context.Context, orgID uuid.UUID, opts LogOptions) error {
	entry := models.AuditLog{
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  toJSON(opts.Before),
		AfterData:   toJSON(opts.After),
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		uid := p.UserID
		entry.UserID = &uid
		entry.UserName = p.Name
	}

	if err := store.ForOrganization(w.rs, orgID).Insert(ctx, &entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Record writes an entry and only logs a failure.
func (w *Writer) Record(ctx context.Context, orgID uuid.UUID, opts LogOptions) {
	if w == nil {
		return
	}
	if err := w.WriteLog(ctx, orgID, opts); err != nil {
		w.log.Warn("audit log not written",
			zap.String("entity_type", opts.EntityType),
			zap.String("entity_id", opts.EntityID.String()),
			zap.Error(err),
		)
	}
}

type ListFilter struct {
	EntityType string
	EntityID   *uuid.UUID
	UserID     *uuid.UUID
	Limit      int
}

func (w *Writer) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.AuditLog, error) {
	var filter store.Filter
	if f.EntityType != "" {
		filter = filter.And(store.Eq("entity_type", f.EntityType))
	}
	if f.EntityID != nil {
		filter = filter.And(store.Eq("entity_id", *f.EntityID))
	}
	if f.UserID != nil {
		filter = filter.And(store.Eq("user_id", *f.UserID))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	logs := []models.AuditLog{}
	err := store.ForOrganization(w.rs, orgID).Read(ctx, &logs, filter,
		store.OrderBy("created_at DESC"), store.Limit(limit))
	return logs, err
}
