package funding

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
)

// Handler exposes HTTP endpoints for deposit and withdrawal flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit opens a provider checkout for a wallet top-up.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := config.ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.RequestDeposit(c.UserContext(), userID, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(DepositResponse{
		Reference:   result.Reference,
		CheckoutURL: result.CheckoutURL,
		Status:      string(result.Entry.Status),
	})
}

// Withdraw debits the wallet and instructs a provider payout.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := config.ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.RequestWithdrawal(c.UserContext(), userID, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(WithdrawalResponse{
		EntryID:           result.Entry.ID,
		ProviderReference: result.ProviderReference,
		Status:            string(result.Entry.Status),
	})
}

// Callback receives the provider's confirmation webhook. It always returns
// 200 for well-formed payloads so the provider stops retrying.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" {
		return fiber.NewError(http.StatusBadRequest, "tx_ref is required")
	}
	success := strings.EqualFold(req.Status, "success")
	if err := h.service.HandleCallback(c.UserContext(), req.Reference, success); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusOK)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, identity.ErrNotVerified), errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return userID, nil
}
