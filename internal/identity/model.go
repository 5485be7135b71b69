package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound indicates no user exists with the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotVerified indicates the user has not completed phone verification.
	ErrNotVerified = errors.New("user not verified")

	// ErrPhoneTaken indicates another user already verified with this phone number.
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrInvalidOTP indicates the submitted code does not match.
	ErrInvalidOTP = errors.New("invalid verification code")

	// ErrOTPExpired indicates no code is pending for the user.
	ErrOTPExpired = errors.New("verification code expired")
)

// Status tracks a user's verification lifecycle.
type Status string

const (
	StatusUnverified  Status = "unverified"
	StatusPendingOTP  Status = "pending_otp"
	StatusVerified    Status = "verified"
	StatusDeactivated Status = "deactivated"
)

// User is a registered player, created on first interaction with the chat
// transport. Users are never deleted, only deactivated.
type User struct {
	ID        int64
	Username  string
	Phone     string
	Status    Status
	CreatedAt time.Time
}
