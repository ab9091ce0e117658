package reconcile

import (
	"context"
	"testing"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/material"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/purchase"
	"buildtrack-backend/internal/receipt"
	"buildtrack-backend/internal/site"
	"buildtrack-backend/internal/store"
	"buildtrack-backend/internal/testutil"
	"buildtrack-backend/internal/vendor"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// hookStore lets a test interleave a competing write before an update.
type hookStore struct {
	store.RecordStore
	onUpdate func(model any, patch map[string]any)
}

func (h *hookStore) Update(ctx context.Context, model any, f store.Filter, patch map[string]any) (int64, error) {
	if h.onUpdate != nil {
		h.onUpdate(model, patch)
	}
	return h.RecordStore.Update(ctx, model, f, patch)
}

type env struct {
	engine    *Engine
	ledger    *receipt.Ledger
	materials *material.Registry
	book      *purchase.Book
	base      store.RecordStore
	hooks     *hookStore
	org       uuid.UUID
	ctx       context.Context
	cement    *models.MaterialMaster
	site1     *models.Site
	vendor    *models.Vendor
}

func newEnv(t *testing.T, maxAttempts int) *env {
	t.Helper()
	base, _ := testutil.NewStore(t)
	hooks := &hookStore{RecordStore: base}
	ctx := context.Background()
	org := uuid.New()

	sites := site.NewRegistry(hooks, nil)
	vendors := vendor.NewRegistry(hooks, nil)
	materials := material.NewRegistry(hooks, sites, nil)
	book := purchase.NewBook(hooks)

	s1, err := sites.Create(ctx, org, site.Input{Name: "Site-1"})
	require.NoError(t, err)
	v, err := vendors.Create(ctx, org, vendor.Input{Name: "Shree Traders"})
	require.NoError(t, err)
	cement, err := materials.Create(ctx, org, material.CreateInput{
		Name:     "Cement",
		Category: models.CategoryCement,
		Unit:     "kg",
	})
	require.NoError(t, err)

	return &env{
		engine:    NewEngine(hooks, materials, book, vendors, nil, zap.NewNop(), maxAttempts),
		ledger:    receipt.NewLedger(hooks, materials, sites, vendors, nil, zap.NewNop()),
		materials: materials,
		book:      book,
		base:      base,
		hooks:     hooks,
		org:       org,
		ctx:       ctx,
		cement:    cement,
		site1:     s1,
		vendor:    v,
	}
}

func (e *env) receipt(t *testing.T, materialID uuid.UUID, filled, empty string) *models.MaterialReceipt {
	t.Helper()
	r, err := e.ledger.Create(e.ctx, e.org, receipt.Input{
		Date:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		VehicleNumber: "MH12AB1234",
		MaterialID:    materialID,
		FilledWeight:  dec(filled),
		EmptyWeight:   dec(empty),
		VendorID:      &e.vendor.ID,
		SiteID:        e.site1.ID.String(),
	})
	require.NoError(t, err)
	return r
}

func (e *env) reload(t *testing.T, id uuid.UUID) *models.MaterialReceipt {
	t.Helper()
	r, err := e.ledger.Get(e.ctx, e.org, id)
	require.NoError(t, err)
	return r
}

func (e *env) submit(t *testing.T, rate string, receipts ...*models.MaterialReceipt) *SubmitResult {
	t.Helper()
	s := Submission{Rates: map[uuid.UUID]decimal.Decimal{}}
	for _, r := range receipts {
		s.ReceiptIDs = append(s.ReceiptIDs, r.ID)
		s.Rates[r.ID] = dec(rate)
	}
	res, err := e.engine.SubmitPurchase(e.ctx, e.org, s)
	require.NoError(t, err)
	return res
}

func TestRollup_DerivesMissingFigures(t *testing.T) {
	snap := Rollup([]models.Purchase{
		{Quantity: dec("10"), ConsumedQuantity: decimal.NewNullDecimal(dec("4"))},
		{Quantity: dec("20"), ConsumedQuantity: decimal.NewNullDecimal(dec("15"))},
	})
	assert.True(t, snap.Consumed.Equal(dec("19")), "consumed %s", snap.Consumed)
	assert.True(t, snap.Remaining.Equal(dec("11")), "remaining %s", snap.Remaining)

	fromRemaining := Rollup([]models.Purchase{
		{Quantity: dec("10"), RemainingQuantity: decimal.NewNullDecimal(dec("4"))},
		{Quantity: dec("20"), RemainingQuantity: decimal.NewNullDecimal(dec("15"))},
	})
	assert.True(t, fromRemaining.Remaining.Equal(dec("19")), "remaining %s", fromRemaining.Remaining)
	assert.True(t, fromRemaining.Consumed.Equal(dec("11")), "consumed %s", fromRemaining.Consumed)

	empty := Rollup(nil)
	assert.True(t, empty.Consumed.IsZero())
	assert.True(t, empty.Remaining.IsZero())
}

func TestSubmitPurchase_EndToEnd(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "5500", "50")
	b := e.receipt(t, e.cement.ID, "3000", "0")

	res := e.submit(t, "350", a, b)

	require.NotNil(t, res.Purchase)
	assert.Equal(t, 2, res.Linked)
	assert.Equal(t, 2, res.Requested)
	assert.Nil(t, res.SyncWarning)
	assert.Empty(t, res.Warnings())

	p := res.Purchase
	assert.True(t, p.Quantity.Equal(dec("8450")))
	assert.True(t, p.TotalAmount.Equal(dec("2957500")))
	assert.True(t, p.UnitRate.Equal(dec("350")))
	assert.Equal(t, "Cement", p.MaterialName)
	assert.Equal(t, "Site-1", p.Site)
	assert.Equal(t, "Shree Traders", p.Vendor)
	require.NotNil(t, p.LinkedReceiptID)
	assert.Equal(t, a.ID, *p.LinkedReceiptID)
	assert.Len(t, p.Lines, 2)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got := e.reload(t, id)
		require.NotNil(t, got.LinkedPurchaseID)
		assert.Equal(t, p.ID, *got.LinkedPurchaseID)
	}

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("8450")), "remaining %s", m.Quantity)
	assert.True(t, m.ConsumedQuantity.IsZero())
	assert.Equal(t, 1, m.Version)

	t.Run("resubmitting the same selection is safe", func(t *testing.T) {
		id := p.ID
		again, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{PurchaseID: &id})
		require.NoError(t, err)
		assert.Equal(t, 2, again.Linked)
		assert.True(t, again.Purchase.Quantity.Equal(dec("8450")))

		m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Version, "unchanged stock is not rewritten")
	})
}

func TestSubmitPurchase_EditDeselectsAndCarriesConsumption(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "50", "0")
	res := e.submit(t, "10", a, b)
	id := res.Purchase.ID

	_, err := e.engine.AdjustPurchaseStock(e.ctx, e.org, id, decPtr("30"), nil)
	require.NoError(t, err)

	edited, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{
		PurchaseID: &id,
		ReceiptIDs: []uuid.UUID{b.ID},
		Rates:      map[uuid.UUID]decimal.Decimal{b.ID: dec("12")},
	})
	require.NoError(t, err)

	p := edited.Purchase
	assert.True(t, p.Quantity.Equal(dec("50")))
	assert.True(t, p.ConsumedQuantity.Decimal.Equal(dec("30")))
	assert.True(t, p.RemainingQuantity.Decimal.Equal(dec("20")))
	assert.True(t, p.UnitRate.Equal(dec("12")))
	require.NotNil(t, p.LinkedReceiptID)
	assert.Equal(t, b.ID, *p.LinkedReceiptID, "representative receipt moves off the deselected one")

	assert.Nil(t, e.reload(t, a.ID).LinkedPurchaseID)
	require.NotNil(t, e.reload(t, b.ID).LinkedPurchaseID)

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("20")))
	assert.True(t, m.ConsumedQuantity.Equal(dec("30")))
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestSubmitPurchase_ValidationWritesNothing(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")

	steel, err := e.materials.Create(e.ctx, e.org, material.CreateInput{
		Name: "TMT Steel", Category: models.CategorySteel, Unit: "kg",
	})
	require.NoError(t, err)
	s := e.receipt(t, steel.ID, "40", "0")

	tests := []struct {
		name  string
		sub   Submission
		check func(error) bool
		code  string
	}{
		{"empty selection", Submission{}, apperr.IsValidation, "NO_RECEIPTS"},
		{"zero rate", Submission{
			ReceiptIDs: []uuid.UUID{a.ID},
			Rates:      map[uuid.UUID]decimal.Decimal{a.ID: decimal.Zero},
		}, apperr.IsValidation, "RATE_NOT_POSITIVE"},
		{"unknown receipt", Submission{
			ReceiptIDs: []uuid.UUID{a.ID, uuid.Nil},
			Rates:      map[uuid.UUID]decimal.Decimal{a.ID: dec("1"), uuid.Nil: dec("1")},
		}, apperr.IsNotFound, "RECEIPT_NOT_FOUND"},
		{"mixed materials", Submission{
			ReceiptIDs: []uuid.UUID{a.ID, s.ID},
			Rates:      map[uuid.UUID]decimal.Decimal{a.ID: dec("1"), s.ID: dec("1")},
		}, apperr.IsValidation, "MIXED_MATERIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.engine.SubmitPurchase(e.ctx, e.org, tt.sub)
			require.True(t, tt.check(err), "got %v", err)
			var de *apperr.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Code)
		})
	}

	list, err := e.book.List(e.ctx, e.org, purchase.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Nil(t, e.reload(t, a.ID).LinkedPurchaseID)
}

func TestLinkReceiptToPurchase(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "60", "0")
	first := e.submit(t, "10", a).Purchase
	second := e.submit(t, "10", b).Purchase

	t.Run("same target is a no-op", func(t *testing.T) {
		ok, err := e.engine.LinkReceiptToPurchase(e.ctx, e.org, a.ID, first.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.engine.LinkReceiptToPurchase(e.ctx, e.org, a.ID, first.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("other target conflicts and leaves the link", func(t *testing.T) {
		ok, err := e.engine.LinkReceiptToPurchase(e.ctx, e.org, a.ID, second.ID)
		assert.False(t, ok)
		require.True(t, apperr.IsConflict(err))
		var de *apperr.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "RECEIPT_LINKED", de.Code)
		assert.Equal(t, first.ID, de.Details["linkedPurchaseId"])
		assert.Equal(t, first.ID, *e.reload(t, a.ID).LinkedPurchaseID)
	})

	t.Run("selecting a receipt held elsewhere is rejected", func(t *testing.T) {
		_, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{
			ReceiptIDs: []uuid.UUID{a.ID},
			Rates:      map[uuid.UUID]decimal.Decimal{a.ID: dec("9")},
		})
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("the last receipt of a purchase stays linked", func(t *testing.T) {
		err := e.engine.UnlinkReceipt(e.ctx, e.org, a.ID)
		require.True(t, apperr.IsConflict(err))
		var de *apperr.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "LAST_RECEIPT", de.Code)
		assert.Equal(t, first.ID, *e.reload(t, a.ID).LinkedPurchaseID)
	})

	t.Run("a released receipt moves to another purchase", func(t *testing.T) {
		_, err := e.engine.DeletePurchase(e.ctx, e.org, first.ID)
		require.NoError(t, err)
		require.NoError(t, e.engine.UnlinkReceipt(e.ctx, e.org, a.ID), "unlinking a free receipt is harmless")

		require.NoError(t, e.engine.AttachReceipt(e.ctx, e.org, a.ID, second.ID, decPtr("10")))
		p, err := e.book.Get(e.ctx, e.org, second.ID)
		require.NoError(t, err)
		assert.True(t, p.Quantity.Equal(dec("160")))
		assert.Equal(t, second.ID, *e.reload(t, a.ID).LinkedPurchaseID)
	})

	t.Run("missing purchase", func(t *testing.T) {
		_, err := e.engine.LinkReceiptToPurchase(e.ctx, e.org, b.ID, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestSubmitPurchase_RacedLinkIsReportedNotFatal(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "60", "0")
	rival := uuid.New()

	fired := false
	e.hooks.onUpdate = func(model any, patch map[string]any) {
		if _, ok := model.(*models.MaterialReceipt); !ok || fired {
			return
		}
		if v, ok := patch["linked_purchase_id"].(uuid.UUID); ok && v != rival {
			fired = true
			_, err := store.ForOrganization(e.base, e.org).Update(e.ctx, &models.MaterialReceipt{},
				store.Filter{store.Eq("id", b.ID)}, map[string]any{"linked_purchase_id": rival})
			require.NoError(t, err)
		}
	}

	res := e.submit(t, "10", a, b)

	require.NotNil(t, res.Purchase)
	assert.Equal(t, 1, res.Linked)
	assert.Equal(t, 2, res.Requested)
	assert.True(t, res.PartialLinkFailure())
	require.Len(t, res.LinkFailures, 1)
	assert.Equal(t, b.ID, res.LinkFailures[0].ReceiptID)
	assert.Contains(t, res.Warnings(), "only 1 of 2 receipts were linked")
	assert.Equal(t, rival, *e.reload(t, b.ID).LinkedPurchaseID, "the winner keeps the receipt")
}

func TestSyncMaterialMaster_RetriesStaleVersion(t *testing.T) {
	for _, tc := range []struct {
		attempts int
		wantErr  bool
	}{{1, true}, {3, false}} {
		e := newEnv(t, tc.attempts)
		a := e.receipt(t, e.cement.ID, "100", "0")
		res := e.submit(t, "10", a)
		_, err := e.engine.AdjustPurchaseStock(e.ctx, e.org, res.Purchase.ID, decPtr("40"), nil)
		require.NoError(t, err)

		// the stored snapshot is stale now; a rival bumps the version once
		_, err = store.ForOrganization(e.base, e.org).Update(e.ctx, &models.MaterialMaster{},
			store.Filter{store.Eq("id", e.cement.ID)}, map[string]any{"quantity": dec("1")})
		require.NoError(t, err)
		fired := false
		e.hooks.onUpdate = func(model any, patch map[string]any) {
			if _, ok := model.(*models.MaterialMaster); !ok || fired {
				return
			}
			if _, ok := patch["version"]; ok {
				fired = true
				_, err := store.ForOrganization(e.base, e.org).Update(e.ctx, &models.MaterialMaster{},
					store.Filter{store.Eq("id", e.cement.ID)}, map[string]any{"version": store.Increment("version")})
				require.NoError(t, err)
			}
		}

		snap, err := e.engine.SyncMaterialMaster(e.ctx, e.org, e.cement.ID)
		if tc.wantErr {
			assert.True(t, apperr.IsConflict(err), "attempts=%d", tc.attempts)
			continue
		}
		require.NoError(t, err)
		assert.True(t, snap.Remaining.Equal(dec("60")))
		m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
		require.NoError(t, err)
		assert.True(t, m.Quantity.Equal(dec("60")))
		assert.True(t, m.ConsumedQuantity.Equal(dec("40")))
	}
}

func TestSubmitPurchase_MissingMaterialIsSyncWarning(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	_, err := store.ForOrganization(e.base, e.org).Delete(e.ctx, &models.MaterialMaster{},
		store.Filter{store.Eq("id", e.cement.ID)})
	require.NoError(t, err)

	res := e.submit(t, "10", a)
	require.NotNil(t, res.Purchase)
	assert.True(t, apperr.IsNotFound(res.SyncWarning))
	assert.Equal(t, 1, res.Linked)
	assert.Len(t, res.Warnings(), 1)
}

func TestDeletePurchase_ReleasesReceiptsAndResyncs(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "30", "0")
	keep := e.submit(t, "10", b).Purchase
	gone := e.submit(t, "10", a).Purchase

	warn, err := e.engine.DeletePurchase(e.ctx, e.org, gone.ID)
	require.NoError(t, err)
	assert.Nil(t, warn)

	assert.Nil(t, e.reload(t, a.ID).LinkedPurchaseID)
	assert.Equal(t, keep.ID, *e.reload(t, b.ID).LinkedPurchaseID)
	_, err = e.book.Get(e.ctx, e.org, gone.ID)
	assert.True(t, apperr.IsNotFound(err))

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("30")))

	require.NoError(t, e.ledger.Delete(e.ctx, e.org, a.ID), "released receipts can be deleted")
}

func TestAdjustPurchaseStock(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	p := e.submit(t, "10", a).Purchase

	_, err := e.engine.AdjustPurchaseStock(e.ctx, e.org, p.ID, nil, nil)
	assert.True(t, apperr.IsValidation(err))
	_, err = e.engine.AdjustPurchaseStock(e.ctx, e.org, p.ID, decPtr("-1"), nil)
	assert.True(t, apperr.IsValidation(err))

	res, err := e.engine.AdjustPurchaseStock(e.ctx, e.org, p.ID, nil, decPtr("25"))
	require.NoError(t, err)
	assert.Nil(t, res.SyncWarning)
	assert.True(t, res.Purchase.RemainingQuantity.Decimal.Equal(dec("25")))
	assert.True(t, res.Purchase.ConsumedQuantity.Decimal.IsZero())

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("25")))
	assert.True(t, m.ConsumedQuantity.IsZero())
}

func TestAttachReceipt_RetotalsPurchase(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "50", "0")
	id := e.submit(t, "10", a).Purchase.ID

	err := e.engine.AttachReceipt(e.ctx, e.org, b.ID, id, nil)
	require.True(t, apperr.IsValidation(err), "a new receipt needs a rate")
	assert.Nil(t, e.reload(t, b.ID).LinkedPurchaseID)

	steel, err := e.materials.Create(e.ctx, e.org, material.CreateInput{
		Name: "TMT Steel", Category: models.CategorySteel, Unit: "kg",
	})
	require.NoError(t, err)
	s := e.receipt(t, steel.ID, "40", "0")
	err = e.engine.AttachReceipt(e.ctx, e.org, s.ID, id, decPtr("10"))
	var de *apperr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "MATERIAL_MISMATCH", de.Code)

	require.NoError(t, e.engine.AttachReceipt(e.ctx, e.org, b.ID, id, decPtr("12")))

	p, err := e.book.Get(e.ctx, e.org, id)
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("150")))
	assert.True(t, p.TotalAmount.Equal(dec("1600")))
	require.Len(t, p.Lines, 2)
	assert.Equal(t, b.ID, p.Lines[1].ReceiptID)
	assert.Equal(t, id, *e.reload(t, b.ID).LinkedPurchaseID)

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("150")))

	t.Run("header edits keep the stored rates", func(t *testing.T) {
		res, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{PurchaseID: &id, InvoiceNumber: "INV-9"})
		require.NoError(t, err)
		assert.Equal(t, "INV-9", res.Purchase.InvoiceNumber)
		assert.True(t, res.Purchase.TotalAmount.Equal(dec("1600")))
	})

	t.Run("a held receipt is re-billed", func(t *testing.T) {
		require.NoError(t, e.engine.AttachReceipt(e.ctx, e.org, a.ID, id, decPtr("11")))
		p, err := e.book.Get(e.ctx, e.org, id)
		require.NoError(t, err)
		assert.True(t, p.TotalAmount.Equal(dec("1700")))
		assert.True(t, p.Quantity.Equal(dec("150")))

		require.NoError(t, e.engine.AttachReceipt(e.ctx, e.org, a.ID, id, nil), "no rate leaves it alone")
	})
}

func TestUnlinkReceipt_RetotalsPurchase(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "100", "0")
	b := e.receipt(t, e.cement.ID, "50", "0")
	sub, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{
		ReceiptIDs: []uuid.UUID{a.ID, b.ID},
		Rates:      map[uuid.UUID]decimal.Decimal{a.ID: dec("10"), b.ID: dec("12")},
	})
	require.NoError(t, err)
	id := sub.Purchase.ID

	require.NoError(t, e.engine.UnlinkReceipt(e.ctx, e.org, a.ID))

	p, err := e.book.Get(e.ctx, e.org, id)
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("50")))
	assert.True(t, p.TotalAmount.Equal(dec("600")))
	require.Len(t, p.Lines, 1)
	require.NotNil(t, p.LinkedReceiptID)
	assert.Equal(t, b.ID, *p.LinkedReceiptID)
	assert.Nil(t, e.reload(t, a.ID).LinkedPurchaseID)

	m, err := e.materials.Read(e.ctx, e.org, e.cement.ID)
	require.NoError(t, err)
	assert.True(t, m.Quantity.Equal(dec("50")))

	err = e.engine.UnlinkReceipt(e.ctx, e.org, b.ID)
	assert.True(t, apperr.IsConflict(err))
	p, err = e.book.Get(e.ctx, e.org, id)
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("50")), "refused unlink changes nothing")
}

func TestRepresentativeReceiptFollowsSelectionOrder(t *testing.T) {
	e := newEnv(t, 3)
	a := e.receipt(t, e.cement.ID, "10", "0")
	b := e.receipt(t, e.cement.ID, "20", "0")
	c := e.receipt(t, e.cement.ID, "30", "0")

	p := e.submit(t, "5", c, b, a).Purchase
	require.NotNil(t, p.LinkedReceiptID)
	assert.Equal(t, c.ID, *p.LinkedReceiptID)

	require.NoError(t, e.engine.UnlinkReceipt(e.ctx, e.org, c.ID))
	got, err := e.book.Get(e.ctx, e.org, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LinkedReceiptID)
	assert.Equal(t, b.ID, *got.LinkedReceiptID, "next in the selection, not the oldest receipt")

	again, err := e.engine.SubmitPurchase(e.ctx, e.org, Submission{PurchaseID: &p.ID})
	require.NoError(t, err)
	require.Len(t, again.Purchase.Lines, 2)
	assert.Equal(t, b.ID, again.Purchase.Lines[0].ReceiptID, "an edit without a selection keeps the order")
	assert.Equal(t, b.ID, *again.Purchase.LinkedReceiptID)
}
