package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/events"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/metrics"
	"github.com/yeab-games/game_zone/internal/notification"
)

// Service applies money movement against the ledger store. It validates
// input, maps idempotent replays to successful outcomes, and emits
// notifications and events; atomicity lives in the store.
type Service struct {
	store     ledger.Store
	notifier  notification.Notifier
	publisher events.Publisher
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, notifier notification.Notifier, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{store: store, notifier: notifier, publisher: publisher}
}

// Balance is a point-in-time view of a user's funds.
type Balance struct {
	UserID int64
	Amount int64
	AsOf   time.Time
}

// RequestDeposit records a pending credit keyed by the provider reference.
// Retried webhooks redeliver the same reference; the prior entry is returned
// instead of crediting twice.
func (s *Service) RequestDeposit(ctx context.Context, userID, amount int64, externalRef string) (ledger.Entry, error) {
	if amount <= 0 {
		return ledger.Entry{}, ledger.ErrInvalidAmount
	}
	entry, err := s.store.Deposit(ctx, userID, amount, externalRef)
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return entry, nil
	}
	return entry, err
}

// ConfirmDeposit resolves a pending deposit from a provider callback. A
// replayed callback is a non-error no-op returning the recorded entry.
func (s *Service) ConfirmDeposit(ctx context.Context, externalRef string, success bool) (ledger.Entry, error) {
	entry, err := s.store.ResolveDeposit(ctx, externalRef, success)
	if errors.Is(err, ledger.ErrAlreadyResolved) {
		return entry, nil
	}
	if err != nil {
		return ledger.Entry{}, err
	}

	if entry.Status == ledger.StatusConfirmed {
		metrics.DepositsConfirmed.Inc()
		_ = s.publisher.PublishDepositConfirmed(ctx, events.DepositConfirmed{
			UserID:      entry.UserID,
			Amount:      entry.Amount,
			ProviderRef: externalRef,
		})
		s.notify(ctx, notification.KindDepositConfirmed, entry.UserID,
			fmt.Sprintf("Deposit of %s confirmed", config.FormatAmount(entry.Amount)))
	} else {
		s.notify(ctx, notification.KindDepositFailed, entry.UserID, "Deposit failed, please try again")
	}
	return entry, nil
}

// Withdraw debits the user's wallet. The balance re-check and the append are
// one transaction in the store, so a concurrent hold cannot overdraw.
func (s *Service) Withdraw(ctx context.Context, userID, amount int64) (ledger.Entry, error) {
	if amount <= 0 {
		return ledger.Entry{}, ledger.ErrInvalidAmount
	}
	entry, err := s.store.Withdraw(ctx, userID, amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	metrics.Withdrawals.Inc()
	return entry, nil
}

// HoldStake escrows a stake against a session.
func (s *Service) HoldStake(ctx context.Context, userID int64, sessionID string, amount int64) (ledger.Entry, error) {
	if amount <= 0 {
		return ledger.Entry{}, ledger.ErrInvalidAmount
	}
	return s.store.HoldStake(ctx, userID, sessionID, amount)
}

// ReleaseStake resolves a session's pot. Calling it again for an already
// resolved session returns the recorded outcome without moving money.
func (s *Service) ReleaseStake(ctx context.Context, sessionID string, winnerID *int64) (ledger.Release, error) {
	release, err := s.store.ReleaseStake(ctx, sessionID, winnerID)
	if errors.Is(err, ledger.ErrAlreadyReleased) {
		return release, nil
	}
	return release, err
}

// RefundStake returns a single user's hold for a session that never started,
// used when a join loses the race for a lobby's opponent slot.
func (s *Service) RefundStake(ctx context.Context, userID int64, sessionID string) error {
	_, err := s.store.RefundStake(ctx, userID, sessionID)
	if errors.Is(err, ledger.ErrEntryNotFound) || errors.Is(err, ledger.ErrAlreadyReleased) {
		return nil
	}
	return err
}

// Balance derives the user's confirmed balance from the log.
func (s *Service) Balance(ctx context.Context, userID int64) (Balance, error) {
	amount, err := s.store.Balance(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{UserID: userID, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// History returns the user's transaction log.
func (s *Service) History(ctx context.Context, userID int64) ([]ledger.Entry, error) {
	return s.store.ListEntries(ctx, userID)
}

func (s *Service) notify(ctx context.Context, kind string, userID int64, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: userID, Body: body})
}
