package identity

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
}

type confirmRequest struct {
	Code string `json:"code"`
}

type userResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Phone    string `json:"phone,omitempty"`
	Status   string `json:"status"`
}

func toUserResponse(user User) userResponse {
	return userResponse{UserID: user.ID, Username: user.Username, Phone: user.Phone, Status: string(user.Status)}
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID <= 0 || req.Username == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id and username are required")
	}
	user, err := h.service.EnsureUser(c.UserContext(), req.UserID, req.Username)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toUserResponse(user))
}

// Get returns the user profile.
func (h *Handler) Get(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toUserResponse(user))
}

// StartVerification binds a phone number and sends a one-time code.
func (h *Handler) StartVerification(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "phone is required")
	}
	if err := h.service.StartVerification(c.UserContext(), userID, req.Phone); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrPhoneTaken):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.SendStatus(http.StatusAccepted)
}

// ConfirmOTP checks the submitted code and marks the user verified.
func (h *Handler) ConfirmOTP(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.ConfirmOTP(c.UserContext(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidOTP), errors.Is(err, ErrOTPExpired):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.SendStatus(http.StatusOK)
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return userID, nil
}
