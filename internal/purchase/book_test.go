package purchase

import (
	"context"
	"testing"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPurchase(material uuid.UUID, site string, day int) *models.Purchase {
	return &models.Purchase{
		MaterialID:   material,
		MaterialName: "Sand",
		Site:         site,
		Quantity:     dec("12"),
		UnitRate:     dec("111.67"),
		TotalAmount:  dec("1340"),
		Vendor:       "Shree Traders",
		PurchaseDate: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
	}
}

func TestBook_SaveGetAndLines(t *testing.T) {
	rs, _ := testutil.NewStore(t)
	book := NewBook(rs)
	ctx := context.Background()
	org := uuid.New()

	p := newPurchase(uuid.New(), "Site-1", 1)
	require.NoError(t, book.Save(ctx, org, p))
	require.NotEqual(t, uuid.Nil, p.ID)

	r1, r2 := uuid.New(), uuid.New()
	require.NoError(t, book.ReplaceLines(ctx, org, p.ID, []Line{
		{ReceiptID: r1, Quantity: dec("5"), UnitRate: dec("100"), Amount: dec("500")},
		{ReceiptID: r2, Quantity: dec("7"), UnitRate: dec("120"), Amount: dec("840")},
	}))
	require.NoError(t, book.ReplaceLines(ctx, org, p.ID, []Line{
		{ReceiptID: r2, Quantity: dec("7"), UnitRate: dec("125"), Amount: dec("875")},
	}))

	lines, err := book.Lines(ctx, org, p.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, Rates(lines)[r2].Equal(dec("125")))

	p.Quantity = dec("7")
	p.ConsumedQuantity = decimal.NewNullDecimal(dec("2"))
	p.RemainingQuantity = decimal.NewNullDecimal(dec("5"))
	require.NoError(t, book.Save(ctx, org, p))

	got, err := book.Get(ctx, org, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(dec("7")))
	assert.True(t, got.RemainingQuantity.Decimal.Equal(dec("5")))
	assert.Len(t, got.Lines, 1)

	_, err = book.Get(ctx, uuid.New(), p.ID)
	assert.True(t, apperr.IsNotFound(err), "other tenants cannot read it")
}

func TestBook_LinesKeepSelectionOrder(t *testing.T) {
	rs, _ := testutil.NewStore(t)
	book := NewBook(rs)
	ctx := context.Background()
	org := uuid.New()

	p := newPurchase(uuid.New(), "Site-1", 1)
	require.NoError(t, book.Save(ctx, org, p))

	order := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	lines := make([]Line, 0, len(order))
	for _, id := range order {
		lines = append(lines, Line{ReceiptID: id, Quantity: dec("1"), UnitRate: dec("1"), Amount: dec("1")})
	}
	require.NoError(t, book.ReplaceLines(ctx, org, p.ID, lines))

	got, err := book.Get(ctx, org, p.ID)
	require.NoError(t, err)
	stored, err := book.Lines(ctx, org, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	require.Len(t, stored, 3)
	for i, id := range order {
		assert.Equal(t, id, got.Lines[i].ReceiptID)
		assert.Equal(t, id, stored[i].ReceiptID)
		assert.Equal(t, i, stored[i].Position)
	}
}

func TestBook_ListAndDelete(t *testing.T) {
	rs, _ := testutil.NewStore(t)
	book := NewBook(rs)
	ctx := context.Background()
	org := uuid.New()
	sand, steel := uuid.New(), uuid.New()

	early := newPurchase(sand, "Site-1", 1)
	late := newPurchase(sand, "Site-2", 20)
	other := newPurchase(steel, "Site-1", 10)
	for _, p := range []*models.Purchase{early, late, other} {
		require.NoError(t, book.Save(ctx, org, p))
	}

	all, err := book.List(ctx, org, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, late.ID, all[0].ID, "newest first")

	bySand, err := book.ListByMaterial(ctx, org, sand)
	require.NoError(t, err)
	assert.Len(t, bySand, 2)

	from := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	rows, err := book.List(ctx, org, ListFilter{MaterialID: &sand, From: &from})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, late.ID, rows[0].ID)

	rows, err = book.List(ctx, org, ListFilter{Site: "Site-1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, book.Delete(ctx, org, early.ID))
	_, err = book.Get(ctx, org, early.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(book.Delete(ctx, org, early.ID)))
}

func TestBook_SetLinkedReceiptOnlyIfEmpty(t *testing.T) {
	rs, _ := testutil.NewStore(t)
	book := NewBook(rs)
	ctx := context.Background()
	org := uuid.New()

	p := newPurchase(uuid.New(), "Site-1", 1)
	require.NoError(t, book.Save(ctx, org, p))

	first, second := uuid.New(), uuid.New()
	ok, err := book.SetLinkedReceipt(ctx, org, p.ID, &first, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = book.SetLinkedReceipt(ctx, org, p.ID, &second, true)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := book.Get(ctx, org, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LinkedReceiptID)
	assert.Equal(t, first, *got.LinkedReceiptID)

	ok, err = book.SetLinkedReceipt(ctx, org, p.ID, nil, false)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = book.Get(ctx, org, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LinkedReceiptID)
}
