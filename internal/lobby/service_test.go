package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/logging"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/session"
	"github.com/yeab-games/game_zone/internal/wallet"
)

type allowAll struct{}

func (allowAll) RequireVerified(_ context.Context, userID int64) (identity.User, error) {
	return identity.User{ID: userID, Status: identity.StatusVerified}, nil
}

type testDeps struct {
	svc      *Service
	sessions game.Repository
	registry session.Registry
	store    ledger.Store
}

func newTestService(t *testing.T) testDeps {
	t.Helper()
	logger := logging.Discard()
	store := ledger.NewInMemory()
	wallets := wallet.NewService(store, notification.NewLoggerNotifier(logger), nil)
	sessions := game.NewMemoryRepository()
	registry := session.NewMemoryRegistry()
	cfg := config.Config{AllowedStakes: []int64{2_000, 5_000}, MaxWinTokens: 4, TurnTimeout: 2 * time.Minute}
	svc := NewService(sessions, registry, wallets, allowAll{}, game.NewTokenRace(), cfg, notification.NewLoggerNotifier(logger), logger)
	return testDeps{svc: svc, sessions: sessions, registry: registry, store: store}
}

func TestCreateEscrowsStake(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)

	sess, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Status != game.StatusLobby {
		t.Fatalf("expected lobby, got %s", sess.Status)
	}
	if balance, _ := deps.store.Balance(ctx, 1); balance != 5_000 {
		t.Fatalf("stake not escrowed, balance=%d", balance)
	}
	if _, bound, _ := deps.registry.ActiveSession(ctx, 1); !bound {
		t.Fatal("creator not bound to the session")
	}
}

func TestCreateValidation(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)

	if _, err := deps.svc.Create(ctx, 1, 3_000, 2); !errors.Is(err, ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake, got %v", err)
	}
	if _, err := deps.svc.Create(ctx, 1, 5_000, 5); !errors.Is(err, ErrInvalidWinCondition) {
		t.Fatalf("expected ErrInvalidWinCondition, got %v", err)
	}

	// A failed create must leave no binding behind.
	if _, bound, _ := deps.registry.ActiveSession(ctx, 1); bound {
		t.Fatal("failed create left the user bound")
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 1_000)

	if _, err := deps.svc.Create(ctx, 1, 2_000, 1); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, bound, _ := deps.registry.ActiveSession(ctx, 1); bound {
		t.Fatal("failed create left the user bound")
	}
}

func TestCreateWhileBoundRejected(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 20_000)

	if _, err := deps.svc.Create(ctx, 1, 5_000, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := deps.svc.Create(ctx, 1, 5_000, 2); !errors.Is(err, session.ErrAlreadyInSession) {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}
}

func TestJoinStartsGame(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)
	ledger.SeedBalance(deps.store, 2, 8_000)

	created, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	started, err := deps.svc.Join(ctx, created.ID, 2)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if started.Status != game.StatusActive {
		t.Fatalf("expected active, got %s", started.Status)
	}
	if started.OpponentID == nil || *started.OpponentID != 2 {
		t.Fatalf("opponent not recorded: %+v", started.OpponentID)
	}
	if started.TurnOwnerID == nil || *started.TurnOwnerID != 1 {
		t.Fatal("creator should own the first turn")
	}
	if started.Pot != 10_000 {
		t.Fatalf("expected pot 10000, got %d", started.Pot)
	}
	if balance, _ := deps.store.Balance(ctx, 2); balance != 3_000 {
		t.Fatalf("joiner stake not escrowed, balance=%d", balance)
	}
}

func TestJoinGuards(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)

	created, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := deps.svc.Join(ctx, created.ID, 1); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("expected ErrSelfJoin, got %v", err)
	}
	if _, err := deps.svc.Join(ctx, "00000000-0000-0000-0000-000000000000", 2); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := deps.svc.Join(ctx, created.ID, 2); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// The broke joiner must not stay bound after the failed join.
	if _, bound, _ := deps.registry.ActiveSession(ctx, 2); bound {
		t.Fatal("failed join left the user bound")
	}
}

func TestConcurrentJoinOneWinner(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)
	ledger.SeedBalance(deps.store, 2, 10_000)
	ledger.SeedBalance(deps.store, 3, 10_000)

	created, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, joiner := range []int64{2, 3} {
		wg.Add(1)
		go func(slot int, userID int64) {
			defer wg.Done()
			_, results[slot] = deps.svc.Join(ctx, created.ID, userID)
		}(i, joiner)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSessionNotJoinable):
			losses++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one loser, got wins=%d losses=%d", wins, losses)
	}

	// The loser's hold must be refunded and the binding released.
	sess, err := deps.sessions.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	loser := int64(2)
	if *sess.OpponentID == 2 {
		loser = 3
	}
	if balance, _ := deps.store.Balance(ctx, loser); balance != 10_000 {
		t.Fatalf("loser balance not restored, got %d", balance)
	}
	if _, bound, _ := deps.registry.ActiveSession(ctx, loser); bound {
		t.Fatal("loser still bound to the session")
	}
	if sess.Pot != 10_000 {
		t.Fatalf("pot must remain two stakes, got %d", sess.Pot)
	}
}

func TestCancelRefundsCreator(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)

	created, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := deps.svc.Cancel(ctx, created.ID, 2); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := deps.svc.Cancel(ctx, created.ID, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if balance, _ := deps.store.Balance(ctx, 1); balance != 10_000 {
		t.Fatalf("stake not refunded, balance=%d", balance)
	}
	if _, bound, _ := deps.registry.ActiveSession(ctx, 1); bound {
		t.Fatal("creator still bound after cancel")
	}
	sess, _ := deps.sessions.Get(ctx, created.ID)
	if sess.Status != game.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sess.Status)
	}

	// Replayed cancel is a no-op.
	if err := deps.svc.Cancel(ctx, created.ID, 1); err != nil {
		t.Fatalf("cancel replay: %v", err)
	}
}

// flakyStore fails ReleaseStake a set number of times to mimic a storage
// blip between the status transition and the refund.
type flakyStore struct {
	ledger.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) ReleaseStake(ctx context.Context, sessionID string, winnerID *int64) (ledger.Release, error) {
	s.mu.Lock()
	remaining := s.failures
	if remaining > 0 {
		s.failures--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return ledger.Release{}, ledger.ErrStorageUnavailable
	}
	return s.Store.ReleaseStake(ctx, sessionID, winnerID)
}

func TestCancelRetryCompletesRefund(t *testing.T) {
	logger := logging.Discard()
	store := &flakyStore{Store: ledger.NewInMemory(), failures: 1}
	wallets := wallet.NewService(store, notification.NewLoggerNotifier(logger), nil)
	sessions := game.NewMemoryRepository()
	registry := session.NewMemoryRegistry()
	cfg := config.Config{AllowedStakes: []int64{2_000, 5_000}, MaxWinTokens: 4, TurnTimeout: 2 * time.Minute}
	svc := NewService(sessions, registry, wallets, allowAll{}, game.NewTokenRace(), cfg, notification.NewLoggerNotifier(logger), logger)

	ctx := context.Background()
	ledger.SeedBalance(store.Store, 1, 10_000)

	created, err := svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Cancel(ctx, created.ID, 1); !errors.Is(err, ledger.ErrStorageUnavailable) {
		t.Fatalf("expected storage failure, got %v", err)
	}

	// The status already flipped to cancelled; the retry must still refund
	// the escrow and unbind the creator rather than report success early.
	if err := svc.Cancel(ctx, created.ID, 1); err != nil {
		t.Fatalf("cancel retry: %v", err)
	}
	if balance, _ := store.Balance(ctx, 1); balance != 10_000 {
		t.Fatalf("creator balance after cancel retry = %d, want 10000", balance)
	}
	if _, bound, _ := registry.ActiveSession(ctx, 1); bound {
		t.Fatal("creator still bound after cancel retry")
	}
	sess, _ := sessions.Get(ctx, created.ID)
	if sess.Status != game.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sess.Status)
	}
}

func TestCancelAfterJoinRejected(t *testing.T) {
	deps := newTestService(t)
	ctx := context.Background()
	ledger.SeedBalance(deps.store, 1, 10_000)
	ledger.SeedBalance(deps.store, 2, 10_000)

	created, err := deps.svc.Create(ctx, 1, 5_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := deps.svc.Join(ctx, created.ID, 2); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := deps.svc.Cancel(ctx, created.ID, 1); !errors.Is(err, ErrSessionStarted) {
		t.Fatalf("expected ErrSessionStarted, got %v", err)
	}
}
