package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/identity"
)

// RegisterIdentityRoutes wires user registration and verification endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, otpLimiter fiber.Handler) {
	r.Post("/users", h.Register)
	r.Get("/users/:userId", h.Get)
	r.Post("/users/:userId/verify", otpLimiter, h.StartVerification)
	r.Post("/users/:userId/verify/confirm", h.ConfirmOTP)
}
