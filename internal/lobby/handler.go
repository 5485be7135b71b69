package lobby

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/session"
)

// Handler exposes lobby endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a lobby HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	UserID       int64  `json:"user_id"`
	Stake        string `json:"stake"`
	WinCondition int    `json:"win_condition"`
}

type joinRequest struct {
	UserID int64 `json:"user_id"`
}

type cancelRequest struct {
	UserID int64 `json:"user_id"`
}

// Create opens a lobby with the creator's stake escrowed.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	stake, err := config.ParseAmount(req.Stake)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.service.Create(c.UserContext(), req.UserID, stake, req.WinCondition)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(game.SessionResponse(sess))
}

// Join claims the opponent slot of a lobby.
func (h *Handler) Join(c *fiber.Ctx) error {
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.service.Join(c.UserContext(), c.Params("sessionId"), req.UserID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(game.SessionResponse(sess))
}

// Cancel tears down a lobby before it starts.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Cancel(c.UserContext(), c.Params("sessionId"), req.UserID); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusOK)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrNotVerified), errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotCreator):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidStake), errors.Is(err, ErrInvalidWinCondition), errors.Is(err, ErrSelfJoin):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionNotJoinable), errors.Is(err, ErrSessionStarted), errors.Is(err, session.ErrAlreadyInSession):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
