package v1

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/utils"
)

// SweepTokens purges expired confirmation tokens and invites. Admin only;
// normal operation also expires tokens lazily at redeem time, this just
// keeps the table from accumulating dead rows.
func SweepTokens(c *fiber.Ctx) error {
	removed, err := collection.SweepExpiredTokens(c.UserContext(), DB)
	if err != nil {
		return utils.SendError(c, err)
	}

	Logger.Info(c.UserContext()).WithMeta(utils.Map{
		"removed": fmt.Sprintf("%d", removed),
	}).Logs("Expired tokens swept")

	return utils.SendSuccess(c, fiber.Map{"removed": removed})
}
