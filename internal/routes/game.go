package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/game"
)

// RegisterGameRoutes wires in-game endpoints.
func RegisterGameRoutes(r fiber.Router, h *game.Handler) {
	r.Get("/sessions/:sessionId", h.Get)
	r.Post("/sessions/:sessionId/moves", h.SubmitMove)
}
