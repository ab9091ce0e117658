package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKindHelpers(t *testing.T) {
	v := Validation("NEGATIVE_NET_WEIGHT", "net weight %s is negative", "-5")
	c := Conflict("RECEIPT_LINKED", "linked")
	n := NotFound("MATERIAL_NOT_FOUND", "missing")

	assert.True(t, IsValidation(v))
	assert.True(t, IsConflict(fmt.Errorf("wrapped: %w", c)))
	assert.True(t, IsNotFound(n))
	assert.False(t, IsConflict(v))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, "net weight -5 is negative", v.Error())
}

func TestWith_DoesNotMutateOriginal(t *testing.T) {
	base := Conflict("RECEIPT_LINKED", "linked")
	withID := base.With("receiptId", "r1").With("linkedPurchaseId", "p1")

	assert.Nil(t, base.Details)
	assert.Equal(t, "r1", withID.Details["receiptId"])
	assert.Equal(t, "p1", withID.Details["linkedPurchaseId"])
}

func TestFiberErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler(zap.NewNop())})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return Conflict("RECEIPT_LINKED", "receipt is linked").With("receiptId", "r1")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusUnauthorized, "no token")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("db exploded")
	})

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/conflict", fiber.StatusConflict, `"code":"RECEIPT_LINKED"`},
		{"/fiber", fiber.StatusUnauthorized, `"error":"no token"`},
		{"/boom", fiber.StatusInternalServerError, `"error":"Unexpected server error"`},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			b, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(b), tc.body)
		})
	}
}
