package audit

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/httpx"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs?entityType=purchase&entityId=...&userId=...&limit=50
func ListAuditLogsHandler(w *Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := auth.OrganizationID(c)
		if err != nil {
			return err
		}

		entityID, err := httpx.QueryUUID(c, "entityId")
		if err != nil {
			return err
		}
		userID, err := httpx.QueryUUID(c, "userId")
		if err != nil {
			return err
		}

		logs, err := w.List(c.UserContext(), orgID, ListFilter{
			EntityType: c.Query("entityType"),
			EntityID:   entityID,
			UserID:     userID,
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return err
		}
		return c.JSON(logs)
	}
}
