// Package purchase computes purchase totals from the receipts backing them
// and stores purchase records.
package purchase

import (
	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/quantity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one receipt billed at its own unit rate.
type Line struct {
	ReceiptID uuid.UUID
	Quantity  decimal.Decimal
	UnitRate  decimal.Decimal
	Amount    decimal.Decimal
}

type Aggregate struct {
	MaterialID   uuid.UUID
	MaterialName string
	Quantity     decimal.Decimal
	TotalAmount  decimal.Decimal
	// UnitRate is the quantity-weighted average of the line rates.
	UnitRate decimal.Decimal
	Lines    []Line
}

// ComputeFromReceipts totals the selected receipts at the given per-receipt
// rates. Every receipt needs a positive rate and all must be of one material.
func ComputeFromReceipts(receipts []models.MaterialReceipt, rates map[uuid.UUID]decimal.Decimal) (*Aggregate, error) {
	if len(receipts) == 0 {
		return nil, apperr.Validation("NO_RECEIPTS", "select at least one receipt")
	}

	first := receipts[0]
	agg := &Aggregate{
		MaterialID:   first.MaterialID,
		MaterialName: first.MaterialName,
		Quantity:     decimal.Zero,
		TotalAmount:  decimal.Zero,
		Lines:        make([]Line, 0, len(receipts)),
	}

	exact := decimal.Zero
	seen := make(map[uuid.UUID]struct{}, len(receipts))
	for _, r := range receipts {
		if _, dup := seen[r.ID]; dup {
			return nil, apperr.Validation("DUPLICATE_RECEIPT", "receipt %s is selected twice", r.ID).
				With("receiptId", r.ID)
		}
		seen[r.ID] = struct{}{}

		if r.MaterialID != first.MaterialID {
			return nil, apperr.Validation("MIXED_MATERIALS",
				"all receipts of a purchase must be for one material: %s and %s selected", first.MaterialName, r.MaterialName).
				With("receiptId", r.ID).
				With("materialId", r.MaterialID)
		}

		rate, ok := rates[r.ID]
		if !ok || !rate.IsPositive() {
			return nil, apperr.Validation("RATE_NOT_POSITIVE", "receipt %s needs a unit rate greater than zero", r.ID).
				With("receiptId", r.ID)
		}

		product := r.Quantity.Mul(rate)
		agg.Lines = append(agg.Lines, Line{ReceiptID: r.ID, Quantity: r.Quantity, UnitRate: rate, Amount: quantity.Round2(product)})
		agg.Quantity = agg.Quantity.Add(r.Quantity)
		exact = exact.Add(product)
	}

	if !agg.Quantity.IsPositive() {
		return nil, apperr.Validation("QUANTITY_NOT_POSITIVE", "selected receipts add up to no quantity")
	}
	// the total is rounded once; line amounts are rounded for display only
	agg.TotalAmount = quantity.Round2(exact)
	agg.UnitRate = quantity.Round2(exact.Div(agg.Quantity))
	return agg, nil
}

// Derive returns a purchase's consumed and remaining quantities, filling
// whichever is missing from the other:
// consumed = consumedQuantity ?? max(0, quantity - remainingQuantity)
// remaining = remainingQuantity ?? max(0, quantity - consumed)
func Derive(p *models.Purchase) (consumed, remaining decimal.Decimal) {
	if p.ConsumedQuantity.Valid {
		consumed = p.ConsumedQuantity.Decimal
	} else if p.RemainingQuantity.Valid {
		consumed = decimal.Max(decimal.Zero, p.Quantity.Sub(p.RemainingQuantity.Decimal))
	} else {
		consumed = decimal.Zero
	}

	if p.RemainingQuantity.Valid {
		remaining = p.RemainingQuantity.Decimal
	} else {
		remaining = decimal.Max(decimal.Zero, p.Quantity.Sub(consumed))
	}
	return consumed, remaining
}

// StockFigures are the consumed/remaining values stored on a purchase.
type StockFigures struct {
	Consumed  decimal.NullDecimal
	Remaining decimal.NullDecimal
}

// ApplyEdit carries consumption over from the prior record (nil on create)
// and recomputes remaining for the new quantity unless overridden.
func ApplyEdit(prior *models.Purchase, agg *Aggregate, remainingOverride *decimal.Decimal) StockFigures {
	consumed := decimal.Zero
	if prior != nil {
		consumed, _ = Derive(prior)
	}

	remaining := agg.Quantity.Sub(consumed)
	if remainingOverride != nil {
		remaining = *remainingOverride
	}
	return StockFigures{
		Consumed:  decimal.NewNullDecimal(consumed),
		Remaining: decimal.NewNullDecimal(remaining),
	}
}
