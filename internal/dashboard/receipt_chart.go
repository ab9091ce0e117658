// Package dashboard serves chart data over material receipts.
package dashboard

import (
	"sort"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

type ReceiptChartPoint struct {
	Label    string          `json:"label"` // bucket start, YYYY-MM-DD
	Receipts int             `json:"receipts"`
	Received decimal.Decimal `json:"received"`
	Billed   decimal.Decimal `json:"billed"` // linked to a purchase
	Unbilled decimal.Decimal `json:"unbilled"`
}

type ReceiptChartTotals struct {
	Receipts int             `json:"receipts"`
	Received decimal.Decimal `json:"received"`
	Billed   decimal.Decimal `json:"billed"`
	Unbilled decimal.Decimal `json:"unbilled"`
}

type ReceiptChart struct {
	Period      Period              `json:"period"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	MaterialID  *uuid.UUID          `json:"materialId,omitempty"`
	SiteID      string              `json:"siteId,omitempty"`
	Points      []ReceiptChartPoint `json:"points"`
	GrandTotals ReceiptChartTotals  `json:"grandTotals"`
}

func defaultCount(p Period) int {
	switch p {
	case PeriodWeekly:
		return 8
	case PeriodMonthly:
		return 12
	default:
		return 7
	}
}

// bucketStart truncates t to the start of its day, ISO week (Monday) or month.
func bucketStart(p Period, t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch p {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

func step(p Period, t time.Time, n int) time.Time {
	switch p {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7*n)
	case PeriodMonthly:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Window returns the first bucket start and the exclusive end for the last
// count buckets up to and including now.
func Window(p Period, count int, now time.Time) (start, end time.Time) {
	last := bucketStart(p, now)
	return step(p, last, -(count - 1)), step(p, last, 1)
}

// BuildReceiptChart buckets receipts by date. Every bucket in the window
// appears, empty ones with zero totals.
func BuildReceiptChart(p Period, count int, now time.Time, receipts []models.MaterialReceipt) ReceiptChart {
	start, end := Window(p, count, now)

	points := make(map[time.Time]*ReceiptChartPoint, count)
	keys := make([]time.Time, 0, count)
	for b := start; b.Before(end); b = step(p, b, 1) {
		points[b] = &ReceiptChartPoint{
			Label:    b.Format("2006-01-02"),
			Received: decimal.Zero,
			Billed:   decimal.Zero,
			Unbilled: decimal.Zero,
		}
		keys = append(keys, b)
	}

	for _, r := range receipts {
		pt, ok := points[bucketStart(p, r.Date.In(now.Location()))]
		if !ok {
			continue
		}
		pt.Receipts++
		pt.Received = pt.Received.Add(r.Quantity)
		if r.IsLinked() {
			pt.Billed = pt.Billed.Add(r.Quantity)
		} else {
			pt.Unbilled = pt.Unbilled.Add(r.Quantity)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	chart := ReceiptChart{
		Period: p,
		From:   start.Format("2006-01-02"),
		To:     end.AddDate(0, 0, -1).Format("2006-01-02"),
		Points: make([]ReceiptChartPoint, 0, len(keys)),
		GrandTotals: ReceiptChartTotals{
			Received: decimal.Zero,
			Billed:   decimal.Zero,
			Unbilled: decimal.Zero,
		},
	}
	for _, k := range keys {
		pt := points[k]
		chart.Points = append(chart.Points, *pt)
		chart.GrandTotals.Receipts += pt.Receipts
		chart.GrandTotals.Received = chart.GrandTotals.Received.Add(pt.Received)
		chart.GrandTotals.Billed = chart.GrandTotals.Billed.Add(pt.Billed)
		chart.GrandTotals.Unbilled = chart.GrandTotals.Unbilled.Add(pt.Unbilled)
	}
	return chart
}

// GET /api/dashboard/receipt-chart?period=daily&count=7&materialId=&siteId=
func ReceiptChartHandler(rs store.RecordStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}

		period := Period(c.Query("period", string(PeriodDaily)))
		switch period {
		case PeriodDaily, PeriodWeekly, PeriodMonthly:
		default:
			return apperr.Validation("INVALID_PERIOD", "period must be daily, weekly or monthly")
		}
		count := c.QueryInt("count", defaultCount(period))
		if count <= 0 || count > 366 {
			return apperr.Validation("INVALID_COUNT", "count must be between 1 and 366")
		}
		materialID, err := httpx.QueryUUID(c, "materialId")
		if err != nil {
			return err
		}
		siteID := c.Query("siteId")

		now := time.Now().UTC()
		start, end := Window(period, count, now)
		f := store.Filter{store.Gte("date", start), store.Where("date < ?", end)}
		if materialID != nil {
			f = f.And(store.Eq("material_id", *materialID))
		}
		if siteID != "" {
			f = f.And(store.Eq("site_id", siteID))
		}

		var receipts []models.MaterialReceipt
		if err := store.ForOrganization(rs, orgID).Read(c.UserContext(), &receipts, f); err != nil {
			return err
		}

		chart := BuildReceiptChart(period, count, now, receipts)
		chart.MaterialID = materialID
		chart.SiteID = siteID
		return c.JSON(chart)
	}
}
