package dashboard

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"buildtrack-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReceiptChartHandler(t *testing.T) {
	rs, _ := testutil.NewStore(t)
	org := uuid.New()
	cement := uuid.New()
	now := time.Now().UTC()

	scoped := store.ForOrganization(rs, org)
	for _, r := range []models.MaterialReceipt{
		{Date: now, MaterialID: cement, Quantity: decimal.NewFromInt(40), SiteID: "s1"},
		{Date: now, MaterialID: uuid.New(), Quantity: decimal.NewFromInt(7), SiteID: "s1"},
		{Date: now.AddDate(0, 0, -40), MaterialID: cement, Quantity: decimal.NewFromInt(99), SiteID: "s1"},
	} {
		r := r
		r.VehicleNumber = "MH12AB1234"
		r.MaterialName = "Cement"
		r.SiteName = "Site-1"
		require.NoError(t, scoped.Insert(context.Background(), &r))
	}
	// another tenant's receipt never shows up
	require.NoError(t, store.ForOrganization(rs, uuid.New()).Insert(context.Background(), &models.MaterialReceipt{
		Date: now, MaterialID: cement, Quantity: decimal.NewFromInt(500), SiteID: "s1",
		VehicleNumber: "X", MaterialName: "Cement", SiteName: "Site-1",
	}))

	app := fiber.New(fiber.Config{ErrorHandler: apperr.FiberErrorHandler(zap.NewNop())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxOrganizationIDKey, org)
		return c.Next()
	})
	app.Get("/chart", ReceiptChartHandler(rs))

	resp, err := app.Test(httptest.NewRequest("GET", "/chart?period=daily&count=7&materialId="+cement.String(), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var chart ReceiptChart
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chart))
	require.Len(t, chart.Points, 7)
	assert.Equal(t, 1, chart.GrandTotals.Receipts)
	assert.Equal(t, "40", chart.GrandTotals.Received.String())
	assert.Equal(t, "40", chart.Points[6].Unbilled.String())

	resp, err = app.Test(httptest.NewRequest("GET", "/chart?period=yearly", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
