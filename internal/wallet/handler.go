package wallet

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/config"
)

// Handler exposes wallet read endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type entryResponse struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	SessionID   string `json:"session_id,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Balance returns the user's derived balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":   userID,
		"balance":   config.FormatAmount(balance.Amount),
		"timestamp": balance.AsOf,
	})
}

// History returns the user's transaction log, oldest first.
func (h *Handler) History(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:          e.ID,
			Amount:      config.FormatAmount(e.Amount),
			Kind:        string(e.Kind),
			SessionID:   e.SessionID,
			ExternalRef: e.ExternalRef,
			Status:      string(e.Status),
			CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": userID, "entries": out})
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return userID, nil
}
