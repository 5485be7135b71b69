package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/funding"
)

// RegisterFundingRoutes wires deposit and withdrawal endpoints. The provider
// callback is registered separately, outside the idempotency middleware.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/users/:userId/deposits", h.Deposit)
	r.Post("/users/:userId/withdrawals", h.Withdraw)
}
