package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yeab-games/game_zone/internal/logging"
)

// recordingSettler marks the session settled the way the real coordinator
// does, and records what it was asked to do. Setting failures makes the next
// calls fail before anything is recorded.
type recordingSettler struct {
	mu       sync.Mutex
	sessions Repository
	calls    []settleCall
	failures int
}

type settleCall struct {
	sessionID string
	winnerID  int64
	forfeit   bool
}

func (s *recordingSettler) Settle(ctx context.Context, sessionID string, winnerID int64, forfeit bool) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("settlement unavailable")
	}
	s.calls = append(s.calls, settleCall{sessionID: sessionID, winnerID: winnerID, forfeit: forfeit})
	s.mu.Unlock()
	_, err := s.sessions.Transition(ctx, sessionID, StatusActive, StatusSettled, &winnerID)
	return err
}

func newTestEngine(t *testing.T, timeout time.Duration) (*Engine, Repository, *recordingSettler) {
	t.Helper()
	sessions := NewMemoryRepository()
	settler := &recordingSettler{sessions: sessions}
	logger := logging.Discard()
	engine := NewEngine(sessions, NewTokenRace(), settler, timeout, logger)
	return engine, sessions, settler
}

// startSession activates a two-player session with the given last-action time.
func startSession(t *testing.T, sessions Repository, creator, opponent int64, target int, lastAction time.Time) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	if err := sessions.Create(ctx, Session{
		ID: id, CreatorID: creator, Stake: 5_000, WinCondition: target, Pot: 5_000,
		Status: StatusLobby, CreatedAt: lastAction, UpdatedAt: lastAction,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	board, err := NewTokenRace().NewBoard([2]int64{creator, opponent}, target)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	claimed, err := sessions.Activate(ctx, id, opponent, creator, 10_000, board, lastAction)
	if err != nil || !claimed {
		t.Fatalf("activate: claimed=%v err=%v", claimed, err)
	}
	return id
}

func TestSubmitMoveFlipsTurn(t *testing.T) {
	engine, sessions, _ := newTestEngine(t, time.Minute)
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now())

	sess, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 3})
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if sess.TurnOwnerID == nil || *sess.TurnOwnerID != 2 {
		t.Fatalf("turn should pass to opponent, got %+v", sess.TurnOwnerID)
	}

	var state raceBoard
	if err := json.Unmarshal(sess.Board, &state); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if state.Tokens["1"][0] != 3 {
		t.Fatalf("move not recorded, token at %d", state.Tokens["1"][0])
	}
}

func TestSubmitMoveOutOfTurn(t *testing.T) {
	engine, sessions, _ := newTestEngine(t, time.Minute)
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now())

	if _, err := engine.SubmitMove(ctx, id, 2, Move{Token: 0, Steps: 1}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := engine.SubmitMove(ctx, id, 99, Move{Token: 0, Steps: 1}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for outsider, got %v", err)
	}
}

func TestIllegalMoveLeavesStateUnchanged(t *testing.T) {
	engine, sessions, _ := newTestEngine(t, time.Minute)
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now())

	before, err := sessions.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if _, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 7}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}

	after, err := sessions.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(after.Board) != string(before.Board) {
		t.Fatal("board changed after rejected move")
	}
	if *after.TurnOwnerID != *before.TurnOwnerID {
		t.Fatal("turn changed after rejected move")
	}
}

func TestWinningMoveSettles(t *testing.T) {
	engine, sessions, settler := newTestEngine(t, time.Minute)
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now())

	// Players alternate; player 1 marches token 0 home in four sixes.
	for i := 0; i < 3; i++ {
		if _, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 6}); err != nil {
			t.Fatalf("player 1 move %d: %v", i, err)
		}
		if _, err := engine.SubmitMove(ctx, id, 2, Move{Token: 0, Steps: 1}); err != nil {
			t.Fatalf("player 2 move %d: %v", i, err)
		}
	}
	sess, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 6})
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}

	if sess.Status != StatusSettled {
		t.Fatalf("expected settled, got %s", sess.Status)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("expected one settle call, got %d", len(settler.calls))
	}
	call := settler.calls[0]
	if call.winnerID != 1 || call.forfeit {
		t.Fatalf("unexpected settle call %+v", call)
	}

	// No further moves on a terminal session.
	if _, err := engine.SubmitMove(ctx, id, 2, Move{Token: 0, Steps: 1}); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestSweepForfeitsStaleSessions(t *testing.T) {
	engine, sessions, settler := newTestEngine(t, time.Minute)
	ctx := context.Background()

	stale := startSession(t, sessions, 1, 2, 1, time.Now().Add(-5*time.Minute))
	fresh := startSession(t, sessions, 3, 4, 1, time.Now())

	n, err := engine.SweepTimeouts(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one forfeit, got %d", n)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("expected one settle call, got %d", len(settler.calls))
	}
	call := settler.calls[0]
	if call.sessionID != stale || !call.forfeit {
		t.Fatalf("unexpected settle call %+v", call)
	}
	// The turn owner timed out, so the opponent wins.
	if call.winnerID != 2 {
		t.Fatalf("expected winner 2, got %d", call.winnerID)
	}

	freshSess, err := sessions.Get(ctx, fresh)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if freshSess.Status != StatusActive {
		t.Fatalf("fresh session must stay active, got %s", freshSess.Status)
	}

	// A second sweep finds nothing new.
	if n, err := engine.SweepTimeouts(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestSweepCompletesStalledSettlement(t *testing.T) {
	engine, sessions, settler := newTestEngine(t, 20*time.Millisecond)
	settler.failures = 1
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now())

	for i := 0; i < 3; i++ {
		if _, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 6}); err != nil {
			t.Fatalf("player 1 move %d: %v", i, err)
		}
		if _, err := engine.SubmitMove(ctx, id, 2, Move{Token: 0, Steps: 1}); err != nil {
			t.Fatalf("player 2 move %d: %v", i, err)
		}
	}

	// The winning board is recorded but its settlement fails, leaving the
	// session active with the winner holding the turn.
	if _, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 6}); err == nil {
		t.Fatal("expected the stalled settlement to surface an error")
	}

	time.Sleep(50 * time.Millisecond)

	// The sweep must finish the recorded win, not forfeit the winner for
	// "missing" a turn on a finished board.
	n, err := engine.SweepTimeouts(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one resolved session, got %d", n)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("expected one settle call, got %d", len(settler.calls))
	}
	call := settler.calls[0]
	if call.winnerID != 1 || call.forfeit {
		t.Fatalf("expected non-forfeit settle for player 1, got %+v", call)
	}
	sess, err := sessions.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Status != StatusSettled || sess.WinnerID == nil || *sess.WinnerID != 1 {
		t.Fatalf("expected session settled for player 1, got status=%s winner=%v", sess.Status, sess.WinnerID)
	}
}

func TestMoveBeatsSweepRace(t *testing.T) {
	engine, sessions, settler := newTestEngine(t, time.Minute)
	ctx := context.Background()
	id := startSession(t, sessions, 1, 2, 1, time.Now().Add(-5*time.Minute))

	// The move lands first and refreshes the deadline; the sweep must then
	// leave the session alone.
	if _, err := engine.SubmitMove(ctx, id, 1, Move{Token: 0, Steps: 2}); err != nil {
		t.Fatalf("submit move: %v", err)
	}
	n, err := engine.SweepTimeouts(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no forfeits, got %d", n)
	}
	if len(settler.calls) != 0 {
		t.Fatalf("settler should not be called, got %d calls", len(settler.calls))
	}
}
