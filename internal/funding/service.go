package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/wallet"
)

// Verifier gates money movement on completed phone verification.
type Verifier interface {
	RequireVerified(ctx context.Context, userID int64) (identity.User, error)
}

// Service coordinates deposits and withdrawals between the wallet ledger and
// the payment provider connector.
type Service struct {
	wallets  *wallet.Service
	users    Verifier
	provider Provider
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService prepares a funding service.
func NewService(wallets *wallet.Service, users Verifier, provider Provider, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if users == nil {
		return nil, fmt.Errorf("identity service is required")
	}
	if provider == nil {
		provider = StaticProvider{}
	}
	return &Service{wallets: wallets, users: users, provider: provider, notifier: notifier, logger: logger}, nil
}

// DepositResult represents the domain outcome of a deposit initiation.
type DepositResult struct {
	Reference   string
	CheckoutURL string
	Entry       ledger.Entry
}

// WithdrawalResult represents the domain outcome of a withdrawal.
type WithdrawalResult struct {
	Entry             ledger.Entry
	ProviderReference string
	CompletedAt       time.Time
}

// RequestDeposit opens a provider checkout and records a pending ledger
// credit keyed by the provider reference. The credit only counts toward the
// balance once the provider's callback confirms it.
func (s *Service) RequestDeposit(ctx context.Context, userID, amount int64) (DepositResult, error) {
	user, err := s.users.RequireVerified(ctx, userID)
	if err != nil {
		return DepositResult{}, err
	}
	if amount <= 0 {
		return DepositResult{}, ledger.ErrInvalidAmount
	}

	intent, err := s.provider.InitiateDeposit(ctx, DepositAuthorization{
		UserID: user.ID,
		Phone:  user.Phone,
		Amount: amount,
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("initiate deposit: %w", err)
	}

	entry, err := s.wallets.RequestDeposit(ctx, userID, amount, intent.Reference)
	if err != nil {
		return DepositResult{}, err
	}

	s.logger.Info("deposit initiated", "user_id", userID, "reference", intent.Reference)
	return DepositResult{Reference: intent.Reference, CheckoutURL: intent.CheckoutURL, Entry: entry}, nil
}

// HandleCallback settles a pending deposit from the provider webhook.
// Unknown references and replays are acknowledged without effect so the
// provider stops retrying.
func (s *Service) HandleCallback(ctx context.Context, reference string, success bool) error {
	if reference == "" {
		return ledger.ErrEntryNotFound
	}
	_, err := s.wallets.ConfirmDeposit(ctx, reference, success)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		s.logger.Warn("callback for unknown reference", "reference", reference)
		return nil
	}
	return err
}

// RequestWithdrawal authorizes a payout with the provider, then debits the
// wallet. The authorization is a pre-check; funds move on the ledger debit.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, amount int64) (WithdrawalResult, error) {
	user, err := s.users.RequireVerified(ctx, userID)
	if err != nil {
		return WithdrawalResult{}, err
	}

	decision, err := s.provider.Payout(ctx, PayoutAuthorization{Phone: user.Phone, Amount: amount})
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("authorize payout: %w", err)
	}

	entry, err := s.wallets.Withdraw(ctx, userID, amount)
	if err != nil {
		return WithdrawalResult{}, err
	}

	s.notify(ctx, userID, fmt.Sprintf("Withdrawal of %s sent to %s", config.FormatAmount(amount), user.Phone))
	s.logger.Info("withdrawal paid", "user_id", userID, "provider_ref", decision.Reference)
	return WithdrawalResult{Entry: entry, ProviderReference: decision.Reference, CompletedAt: time.Now().UTC()}, nil
}

func (s *Service) notify(ctx context.Context, userID int64, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: notification.KindWithdrawalPaid, Destination: userID, Body: body})
}
