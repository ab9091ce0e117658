package purchase

import (
	"testing"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func receipt(material uuid.UUID, qty string) models.MaterialReceipt {
	return models.MaterialReceipt{ID: uuid.New(), MaterialID: material, MaterialName: "Sand", Quantity: dec(qty)}
}

func TestComputeFromReceipts_WeightedRate(t *testing.T) {
	sand := uuid.New()
	a, b := receipt(sand, "5"), receipt(sand, "7")

	agg, err := ComputeFromReceipts([]models.MaterialReceipt{a, b}, map[uuid.UUID]decimal.Decimal{
		a.ID: dec("100"),
		b.ID: dec("120"),
	})
	require.NoError(t, err)

	assert.True(t, agg.Quantity.Equal(dec("12")))
	assert.True(t, agg.TotalAmount.Equal(dec("1340")))
	assert.Equal(t, "111.67", agg.UnitRate.StringFixed(2))
	assert.Equal(t, sand, agg.MaterialID)
	assert.Equal(t, "Sand", agg.MaterialName)
	require.Len(t, agg.Lines, 2)
	assert.True(t, agg.Lines[1].Amount.Equal(dec("840")))
}

func TestComputeFromReceipts_RoundsTotalOnce(t *testing.T) {
	sand := uuid.New()
	a, b := receipt(sand, "0.125"), receipt(sand, "0.125")

	agg, err := ComputeFromReceipts([]models.MaterialReceipt{a, b}, map[uuid.UUID]decimal.Decimal{
		a.ID: dec("1"),
		b.ID: dec("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "0.13", agg.Lines[0].Amount.StringFixed(2))
	assert.Equal(t, "0.25", agg.TotalAmount.StringFixed(2), "sum of exact products, not of rounded lines")
	assert.Equal(t, "1.00", agg.UnitRate.StringFixed(2))
}

func TestComputeFromReceipts_Rejections(t *testing.T) {
	sand, steel := uuid.New(), uuid.New()
	a, b := receipt(sand, "5"), receipt(steel, "2")
	zero := receipt(sand, "0")

	tests := []struct {
		name     string
		receipts []models.MaterialReceipt
		rates    map[uuid.UUID]decimal.Decimal
		code     string
	}{
		{"no receipts", nil, nil, "NO_RECEIPTS"},
		{"missing rate", []models.MaterialReceipt{a}, map[uuid.UUID]decimal.Decimal{}, "RATE_NOT_POSITIVE"},
		{"zero rate", []models.MaterialReceipt{a}, map[uuid.UUID]decimal.Decimal{a.ID: decimal.Zero}, "RATE_NOT_POSITIVE"},
		{"mixed materials", []models.MaterialReceipt{a, b},
			map[uuid.UUID]decimal.Decimal{a.ID: dec("1"), b.ID: dec("1")}, "MIXED_MATERIALS"},
		{"duplicate receipt", []models.MaterialReceipt{a, a},
			map[uuid.UUID]decimal.Decimal{a.ID: dec("1")}, "DUPLICATE_RECEIPT"},
		{"no quantity", []models.MaterialReceipt{zero},
			map[uuid.UUID]decimal.Decimal{zero.ID: dec("10")}, "QUANTITY_NOT_POSITIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeFromReceipts(tt.receipts, tt.rates)
			require.True(t, apperr.IsValidation(err))
			var de *apperr.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name                string
		quantity            string
		consumed, remaining *string
		wantC, wantR        string
	}{
		{"both stored", "10", ptr("4"), ptr("6"), "4", "6"},
		{"only remaining", "10", nil, ptr("4"), "6", "4"},
		{"remaining above quantity", "10", nil, ptr("12"), "0", "12"},
		{"only consumed", "20", ptr("15"), nil, "15", "5"},
		{"consumed above quantity", "20", ptr("25"), nil, "25", "0"},
		{"neither", "8", nil, nil, "0", "8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.Purchase{Quantity: dec(tt.quantity)}
			if tt.consumed != nil {
				p.ConsumedQuantity = decimal.NewNullDecimal(dec(*tt.consumed))
			}
			if tt.remaining != nil {
				p.RemainingQuantity = decimal.NewNullDecimal(dec(*tt.remaining))
			}
			c, r := Derive(p)
			assert.True(t, c.Equal(dec(tt.wantC)), "consumed %s", c)
			assert.True(t, r.Equal(dec(tt.wantR)), "remaining %s", r)
		})
	}
}

func ptr(s string) *string { return &s }

func TestApplyEdit(t *testing.T) {
	agg := &Aggregate{Quantity: dec("30")}

	t.Run("create starts with nothing consumed", func(t *testing.T) {
		s := ApplyEdit(nil, agg, nil)
		assert.True(t, s.Consumed.Decimal.IsZero())
		assert.True(t, s.Remaining.Decimal.Equal(dec("30")))
	})

	t.Run("edit carries consumption over", func(t *testing.T) {
		prior := &models.Purchase{
			Quantity:          dec("20"),
			ConsumedQuantity:  decimal.NewNullDecimal(dec("8")),
			RemainingQuantity: decimal.NewNullDecimal(dec("12")),
		}
		s := ApplyEdit(prior, agg, nil)
		assert.True(t, s.Consumed.Decimal.Equal(dec("8")))
		assert.True(t, s.Remaining.Decimal.Equal(dec("22")))
	})

	t.Run("override wins", func(t *testing.T) {
		override := dec("3")
		s := ApplyEdit(nil, agg, &override)
		assert.True(t, s.Remaining.Decimal.Equal(dec("3")))
		assert.True(t, s.Remaining.Valid)
	})
}
