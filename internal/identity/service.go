package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service implements user registration and phone verification.
type Service struct {
	repo   Repository
	codes  CodeStore
	sender Sender
	ttl    time.Duration
	logger *slog.Logger
}

// NewService wires the identity service.
func NewService(repo Repository, codes CodeStore, sender Sender, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{repo: repo, codes: codes, sender: sender, ttl: ttl, logger: logger}
}

// EnsureUser registers the user on first contact and refreshes the username on
// subsequent calls. Existing status and phone are preserved.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username string) (User, error) {
	user, err := s.repo.Ensure(ctx, userID, username)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

// Get returns the user profile.
func (s *Service) Get(ctx context.Context, userID int64) (User, error) {
	return s.repo.Get(ctx, userID)
}

// StartVerification binds the phone number to the user and issues a one-time
// code. The code is stored hashed; only the sender sees the clear text.
func (s *Service) StartVerification(ctx context.Context, userID int64, phone string) error {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status == StatusDeactivated {
		return ErrUserNotFound
	}

	if err := s.repo.SetPhone(ctx, userID, phone, StatusPendingOTP); err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	if err := s.codes.Save(ctx, userID, hash, s.ttl); err != nil {
		return err
	}
	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}

	s.logger.Info("verification started", "user_id", userID)
	return nil
}

// ConfirmOTP checks the submitted code against the pending hash and marks the
// user verified on success. The code is single-use.
func (s *Service) ConfirmOTP(ctx context.Context, userID int64, code string) error {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status == StatusVerified {
		return nil
	}
	if user.Status != StatusPendingOTP {
		return ErrInvalidOTP
	}

	hash, err := s.codes.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		return ErrInvalidOTP
	}

	if err := s.codes.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, userID, StatusVerified); err != nil {
		return err
	}

	s.logger.Info("user verified", "user_id", userID)
	return nil
}

// Deactivate disables the account. Deactivated users cannot fund wallets or
// enter games.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	if err := s.repo.UpdateStatus(ctx, userID, StatusDeactivated); err != nil {
		return err
	}
	s.logger.Info("user deactivated", "user_id", userID)
	return nil
}

// RequireVerified returns the user when verified, ErrNotVerified otherwise.
func (s *Service) RequireVerified(ctx context.Context, userID int64) (User, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if user.Status != StatusVerified {
		return User{}, ErrNotVerified
	}
	return user, nil
}
