package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Settler resolves a finished session's pot. Implemented by the settlement
// coordinator; an interface here keeps the dependency pointing outward.
type Settler interface {
	Settle(ctx context.Context, sessionID string, winnerID int64, forfeit bool) error
}

// Engine owns per-session serialization: concurrent moves, timeouts, and
// settlement for one session are totally ordered by its lock, while distinct
// sessions proceed in parallel.
type Engine struct {
	sessions    Repository
	rules       Rules
	settler     Settler
	turnTimeout time.Duration
	logger      *slog.Logger

	locks sync.Map // session id -> *sync.Mutex
}

// NewEngine builds the move-processing engine.
func NewEngine(sessions Repository, rules Rules, settler Settler, turnTimeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		sessions:    sessions,
		rules:       rules,
		settler:     settler,
		turnTimeout: turnTimeout,
		logger:      logger,
	}
}

// Get returns the session as stored.
func (e *Engine) Get(ctx context.Context, sessionID string) (Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// SubmitMove validates and applies one move for the turn owner. A rejected
// move changes neither board nor turn ownership; a winning move settles the
// pot before the lock is dropped.
func (e *Engine) SubmitMove(ctx context.Context, sessionID string, playerID int64, mv Move) (Session, error) {
	unlock := e.lockSession(sessionID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	switch {
	case sess.Status.Terminal():
		return Session{}, ErrAlreadyTerminal
	case sess.Status != StatusActive:
		return Session{}, ErrNotActive
	}
	if sess.TurnOwnerID == nil || *sess.TurnOwnerID != playerID {
		return Session{}, ErrNotYourTurn
	}

	board, outcome, err := e.rules.Apply(sess.Board, playerID, mv)
	if err != nil {
		return Session{}, err
	}

	if outcome.Won {
		// Persist the final board under the current owner, then settle while
		// still holding the session lock so a timeout sweep cannot interleave.
		if err := e.sessions.RecordMove(ctx, sessionID, board, playerID, time.Now()); err != nil {
			return Session{}, err
		}
		if err := e.settler.Settle(ctx, sessionID, outcome.WinnerID, false); err != nil {
			return Session{}, err
		}
		e.locks.Delete(sessionID)
		return e.sessions.Get(ctx, sessionID)
	}

	opponent, ok := sess.OpponentOf(playerID)
	if !ok {
		return Session{}, ErrNotActive
	}
	if err := e.sessions.RecordMove(ctx, sessionID, board, opponent, time.Now()); err != nil {
		return Session{}, err
	}
	return e.sessions.Get(ctx, sessionID)
}

// SweepTimeouts resolves every active session whose turn owner exceeded the
// move deadline, by forfeit or by completing a settlement that stalled.
// Returns how many sessions it resolved.
func (e *Engine) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.turnTimeout)
	stale, err := e.sessions.ListActiveBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var forfeited int
	for _, candidate := range stale {
		if e.forfeit(ctx, candidate.ID, cutoff) {
			forfeited++
		}
	}
	return forfeited, nil
}

// forfeit re-checks the deadline under the session lock so a legitimate
// last-moment move wins the race against the sweep.
func (e *Engine) forfeit(ctx context.Context, sessionID string, cutoff time.Time) bool {
	unlock := e.lockSession(sessionID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil || sess.Status != StatusActive {
		return false
	}
	if sess.LastAction.IsZero() || !sess.LastAction.Before(cutoff) {
		return false
	}
	if sess.TurnOwnerID == nil {
		return false
	}

	// A board that already holds a finished race means a winning move was
	// recorded but its settlement did not complete; finish that settlement
	// instead of forfeiting the winner for "missing" a turn.
	if winner, won, err := e.rules.Winner(sess.Board); err == nil && won {
		if err := e.settler.Settle(ctx, sessionID, winner, false); err != nil {
			e.logger.Error("settlement retry failed", "session_id", sessionID, "error", err)
			return false
		}
		e.locks.Delete(sessionID)
		e.logger.Info("stalled settlement completed", "session_id", sessionID, "winner_id", winner)
		return true
	}

	winner, ok := sess.OpponentOf(*sess.TurnOwnerID)
	if !ok {
		return false
	}

	if err := e.settler.Settle(ctx, sessionID, winner, true); err != nil {
		e.logger.Error("forfeit settlement failed", "session_id", sessionID, "error", err)
		return false
	}
	e.locks.Delete(sessionID)
	e.logger.Info("turn timeout forfeited", "session_id", sessionID, "winner_id", winner)
	return true
}

// RunSweeper drives SweepTimeouts until the context is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.SweepTimeouts(ctx); err != nil {
				e.logger.Error("timeout sweep failed", "error", err)
			}
		}
	}
}

// lockSession serializes work for one session id. The mutex is dropped from
// the map once the session is terminal; stragglers re-create it and then
// no-op against the terminal status guard.
func (e *Engine) lockSession(sessionID string) func() {
	v, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
