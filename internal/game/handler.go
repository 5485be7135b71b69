package game

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/config"
)

// Handler exposes in-game endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a game HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type moveRequest struct {
	UserID int64 `json:"user_id"`
	Token  int   `json:"token"`
	Steps  int   `json:"steps"`
}

// Get returns the session state including the board.
func (h *Handler) Get(c *fiber.Ctx) error {
	sess, err := h.engine.Get(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(SessionResponse(sess))
}

// SubmitMove applies one move for the turn owner.
func (h *Handler) SubmitMove(c *fiber.Ctx) error {
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.engine.SubmitMove(c.UserContext(), c.Params("sessionId"), req.UserID, Move{Token: req.Token, Steps: req.Steps})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(SessionResponse(sess))
}

// SessionResponse shapes a session for the API. The lobby handler reuses it
// so both surfaces render sessions identically.
func SessionResponse(sess Session) fiber.Map {
	resp := fiber.Map{
		"id":            sess.ID,
		"creator_id":    sess.CreatorID,
		"stake":         config.FormatAmount(sess.Stake),
		"win_condition": sess.WinCondition,
		"pot":           config.FormatAmount(sess.Pot),
		"status":        string(sess.Status),
	}
	if len(sess.Board) > 0 {
		resp["board"] = json.RawMessage(sess.Board)
	}
	if sess.OpponentID != nil {
		resp["opponent_id"] = *sess.OpponentID
	}
	if sess.TurnOwnerID != nil {
		resp["turn_owner_id"] = *sess.TurnOwnerID
	}
	if sess.WinnerID != nil {
		resp["winner_id"] = *sess.WinnerID
	}
	return resp
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrIllegalMove):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrNotActive):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
