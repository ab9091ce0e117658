package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/quantity"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchInput is one vehicle visit carrying several materials.
type BatchInput struct {
	Date          time.Time
	VehicleNumber string
	VendorID      *uuid.UUID
	SiteID        string
	ChallanNumber string
	Remarks       string
	Lines         []LineInput
}

type LineInput struct {
	MaterialID   uuid.UUID
	FilledWeight decimal.Decimal
	EmptyWeight  decimal.Decimal
	Quantity     quantity.Optional
	Remarks      string
}

// CreateBatch validates every line before inserting any, then stores all
// lines in one transaction under a shared batch id.
func (l *Ledger) CreateBatch(ctx context.Context, orgID uuid.UUID, in BatchInput) ([]models.MaterialReceipt, error) {
	if len(in.Lines) == 0 {
		return nil, apperr.Validation("EMPTY_BATCH", "a batch needs at least one line item")
	}

	batchID := uuid.New()
	rows := make([]models.MaterialReceipt, 0, len(in.Lines))
	for i, line := range in.Lines {
		remarks := line.Remarks
		if remarks == "" {
			remarks = in.Remarks
		}
		r, err := l.build(ctx, orgID, Input{
			Date:          in.Date,
			VehicleNumber: in.VehicleNumber,
			MaterialID:    line.MaterialID,
			FilledWeight:  line.FilledWeight,
			EmptyWeight:   line.EmptyWeight,
			Quantity:      line.Quantity,
			VendorID:      in.VendorID,
			SiteID:        in.SiteID,
			ChallanNumber: in.ChallanNumber,
			Remarks:       remarks,
		})
		if err != nil {
			var de *apperr.Error
			if errors.As(err, &de) {
				return nil, de.With("line", i+1)
			}
			return nil, err
		}
		r.BatchID = &batchID
		rows = append(rows, *r)
	}

	err := store.ForOrganization(l.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		for i := range rows {
			if err := tx.Insert(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create receipt batch: %w", err)
	}

	for i := range rows {
		l.audit.Record(ctx, orgID, audit.LogOptions{
			EntityType:  audit.EntityMaterialReceipt,
			EntityID:    rows[i].ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("receipt %s line %d of batch %s", rows[i].VehicleNumber, i+1, batchID),
			After:       rows[i],
		})
	}
	return rows, nil
}
