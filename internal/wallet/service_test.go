package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/notification"
)

type testNotifier struct {
	messages []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

func TestDepositIdempotentAcrossRetries(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	first, err := svc.RequestDeposit(ctx, 7, 2_000, "chapa-ref-1")
	if err != nil {
		t.Fatalf("request deposit: %v", err)
	}

	// A redelivered webhook must produce the identical outcome, not a second credit.
	retry, err := svc.RequestDeposit(ctx, 7, 2_000, "chapa-ref-1")
	if err != nil {
		t.Fatalf("retried deposit should succeed: %v", err)
	}
	if retry.ID != first.ID {
		t.Fatalf("retry returned a different entry: %s vs %s", retry.ID, first.ID)
	}

	entries, _ := store.ListEntries(ctx, 7)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
}

func TestConfirmDepositNotifiesAndReplays(t *testing.T) {
	store := ledger.NewInMemory()
	notifier := &testNotifier{}
	svc := NewService(store, notifier, nil)
	ctx := context.Background()

	if _, err := svc.RequestDeposit(ctx, 7, 2_000, "chapa-ref-2"); err != nil {
		t.Fatalf("request deposit: %v", err)
	}
	if _, err := svc.ConfirmDeposit(ctx, "chapa-ref-2", true); err != nil {
		t.Fatalf("confirm deposit: %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Kind != notification.KindDepositConfirmed {
		t.Fatalf("expected one deposit_confirmed notification, got %+v", notifier.messages)
	}

	if _, err := svc.ConfirmDeposit(ctx, "chapa-ref-2", true); err != nil {
		t.Fatalf("replayed callback should be a no-op: %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("replay re-notified: %d messages", len(notifier.messages))
	}

	balance, _ := svc.Balance(ctx, 7)
	if balance.Amount != 2_000 {
		t.Fatalf("expected balance 2000, got %d", balance.Amount)
	}
}

func TestWithdrawValidatesAmountAndFunds(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	ledger.SeedBalance(store, 7, 1_000)

	if _, err := svc.Withdraw(ctx, 7, -5); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, 7, 5_000); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, 7, 1_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	balance, _ := svc.Balance(ctx, 7)
	if balance.Amount != 0 {
		t.Fatalf("expected zero balance, got %d", balance.Amount)
	}
}

func TestReleaseStakeSecondCallReturnsPriorOutcome(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	ledger.SeedBalance(store, 1, 10_000)
	ledger.SeedBalance(store, 2, 10_000)

	const session = "sess-1"
	if _, err := svc.HoldStake(ctx, 1, session, 5_000); err != nil {
		t.Fatalf("hold 1: %v", err)
	}
	if _, err := svc.HoldStake(ctx, 2, session, 5_000); err != nil {
		t.Fatalf("hold 2: %v", err)
	}

	winner := int64(2)
	first, err := svc.ReleaseStake(ctx, session, &winner)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := svc.ReleaseStake(ctx, session, &winner)
	if err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	if second.Pot != first.Pot {
		t.Fatalf("outcomes differ: %d vs %d", second.Pot, first.Pot)
	}

	balance, _ := svc.Balance(ctx, 2)
	if balance.Amount != 15_000 {
		t.Fatalf("expected winner balance 15000, got %d", balance.Amount)
	}
}
