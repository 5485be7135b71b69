package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/lobby"
)

// RegisterLobbyRoutes wires lobby lifecycle endpoints.
func RegisterLobbyRoutes(r fiber.Router, h *lobby.Handler) {
	r.Post("/sessions", h.Create)
	r.Post("/sessions/:sessionId/join", h.Join)
	r.Post("/sessions/:sessionId/cancel", h.Cancel)
}
