package dashboard

import (
	"testing"
	"time"

	"buildtrack-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC) // Wednesday

	start, end := Window(PeriodDaily, 7, now)
	assert.Equal(t, day(2025, 3, 6), start)
	assert.Equal(t, day(2025, 3, 13), end)

	start, end = Window(PeriodWeekly, 2, now)
	assert.Equal(t, day(2025, 3, 3), start, "weeks start on Monday")
	assert.Equal(t, day(2025, 3, 17), end)

	start, end = Window(PeriodMonthly, 3, now)
	assert.Equal(t, day(2025, 1, 1), start)
	assert.Equal(t, day(2025, 4, 1), end)
}

func TestBuildReceiptChart(t *testing.T) {
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	pid := uuid.New()
	rec := func(d time.Time, qty string, linked bool) models.MaterialReceipt {
		r := models.MaterialReceipt{Date: d, Quantity: decimal.RequireFromString(qty)}
		if linked {
			r.LinkedPurchaseID = &pid
		}
		return r
	}

	chart := BuildReceiptChart(PeriodDaily, 3, now, []models.MaterialReceipt{
		rec(day(2025, 3, 10), "10", true),
		rec(day(2025, 3, 10), "5.5", false),
		rec(day(2025, 3, 12), "2", false),
		rec(day(2025, 2, 1), "99", false), // outside the window
	})

	assert.Equal(t, "2025-03-10", chart.From)
	assert.Equal(t, "2025-03-12", chart.To)
	require.Len(t, chart.Points, 3)

	assert.Equal(t, "2025-03-10", chart.Points[0].Label)
	assert.Equal(t, 2, chart.Points[0].Receipts)
	assert.Equal(t, "15.5", chart.Points[0].Received.String())
	assert.Equal(t, "10", chart.Points[0].Billed.String())
	assert.Equal(t, "5.5", chart.Points[0].Unbilled.String())

	assert.Equal(t, 0, chart.Points[1].Receipts, "empty days are kept")
	assert.True(t, chart.Points[1].Received.IsZero())

	assert.Equal(t, 3, chart.GrandTotals.Receipts)
	assert.Equal(t, "17.5", chart.GrandTotals.Received.String())
	assert.Equal(t, "7.5", chart.GrandTotals.Unbilled.String())
}
