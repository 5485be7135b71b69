package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/lobby"
	"github.com/yeab-games/game_zone/internal/logging"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/session"
	"github.com/yeab-games/game_zone/internal/wallet"
)

type verifiedUsers struct{}

func (verifiedUsers) RequireVerified(_ context.Context, userID int64) (identity.User, error) {
	return identity.User{ID: userID, Status: identity.StatusVerified}, nil
}

type stack struct {
	lobby    *lobby.Service
	engine   *game.Engine
	store    ledger.Store
	registry session.Registry
}

// newStack assembles the full in-memory pipeline: lobby, engine, and
// settlement wired together the way routes.Setup does it.
func newStack(t *testing.T, turnTimeout time.Duration) stack {
	t.Helper()
	logger := logging.Discard()
	store := ledger.NewInMemory()
	notifier := notification.NewLoggerNotifier(logger)
	wallets := wallet.NewService(store, notifier, nil)
	sessions := game.NewMemoryRepository()
	registry := session.NewMemoryRegistry()
	rules := game.NewTokenRace()
	cfg := config.Config{AllowedStakes: []int64{2_000, 5_000}, MaxWinTokens: 4, TurnTimeout: turnTimeout}

	coord := NewCoordinator(sessions, wallets, registry, nil, notifier, logger)
	engine := game.NewEngine(sessions, rules, coord, turnTimeout, logger)
	lobbySvc := lobby.NewService(sessions, registry, wallets, verifiedUsers{}, rules, cfg, notifier, logger)
	return stack{lobby: lobbySvc, engine: engine, store: store, registry: registry}
}

// A stakes 50.00 of a 100.00 balance, B stakes 50.00 of 80.00; A plays to the
// win condition and collects the 100.00 pot.
func TestStakedGameEndToEnd(t *testing.T) {
	s := newStack(t, time.Minute)
	ctx := context.Background()
	ledger.SeedBalance(s.store, 1, 10_000)
	ledger.SeedBalance(s.store, 2, 8_000)

	created, err := s.lobby.Create(ctx, 1, 5_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if balance, _ := s.store.Balance(ctx, 1); balance != 5_000 {
		t.Fatalf("creator balance after stake: %d", balance)
	}

	started, err := s.lobby.Join(ctx, created.ID, 2)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if started.Pot != 10_000 {
		t.Fatalf("pot: %d", started.Pot)
	}
	if balance, _ := s.store.Balance(ctx, 2); balance != 3_000 {
		t.Fatalf("joiner balance after stake: %d", balance)
	}

	// Alternate until A's token reaches home: 20 steps in sixes.
	for i := 0; i < 3; i++ {
		if _, err := s.engine.SubmitMove(ctx, created.ID, 1, game.Move{Token: 0, Steps: 6}); err != nil {
			t.Fatalf("A move %d: %v", i, err)
		}
		if _, err := s.engine.SubmitMove(ctx, created.ID, 2, game.Move{Token: 0, Steps: 1}); err != nil {
			t.Fatalf("B move %d: %v", i, err)
		}
	}
	final, err := s.engine.SubmitMove(ctx, created.ID, 1, game.Move{Token: 0, Steps: 6})
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}

	if final.Status != game.StatusSettled {
		t.Fatalf("expected settled, got %s", final.Status)
	}
	if final.WinnerID == nil || *final.WinnerID != 1 {
		t.Fatalf("winner: %+v", final.WinnerID)
	}
	if balance, _ := s.store.Balance(ctx, 1); balance != 13_000 {
		t.Fatalf("winner balance: %d", balance)
	}
	if balance, _ := s.store.Balance(ctx, 2); balance != 3_000 {
		t.Fatalf("loser balance: %d", balance)
	}

	// Both players are free to start new games.
	for _, userID := range []int64{1, 2} {
		if _, bound, _ := s.registry.ActiveSession(ctx, userID); bound {
			t.Fatalf("user %d still bound", userID)
		}
	}

	// And no further moves are accepted.
	if _, err := s.engine.SubmitMove(ctx, created.ID, 2, game.Move{Token: 0, Steps: 1}); !errors.Is(err, game.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestTimeoutForfeitPaysOpponent(t *testing.T) {
	s := newStack(t, 50*time.Millisecond)
	ctx := context.Background()
	ledger.SeedBalance(s.store, 1, 10_000)
	ledger.SeedBalance(s.store, 2, 10_000)

	created, err := s.lobby.Create(ctx, 1, 5_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.lobby.Join(ctx, created.ID, 2); err != nil {
		t.Fatalf("join: %v", err)
	}

	// The creator owns the first turn and never moves.
	time.Sleep(120 * time.Millisecond)
	n, err := s.engine.SweepTimeouts(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one forfeit, got %d", n)
	}

	sess, err := s.engine.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != game.StatusSettled {
		t.Fatalf("expected settled, got %s", sess.Status)
	}
	if sess.WinnerID == nil || *sess.WinnerID != 2 {
		t.Fatalf("opponent should win the forfeit, got %+v", sess.WinnerID)
	}
	if balance, _ := s.store.Balance(ctx, 2); balance != 15_000 {
		t.Fatalf("opponent balance: %d", balance)
	}
	if balance, _ := s.store.Balance(ctx, 1); balance != 5_000 {
		t.Fatalf("forfeiter balance: %d", balance)
	}
}
