package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/events"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/metrics"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/session"
	"github.com/yeab-games/game_zone/internal/wallet"
)

// Coordinator resolves finished sessions: it pays the pot, records the
// terminal state, and frees both players for new games. It implements
// game.Settler.
type Coordinator struct {
	sessions  game.Repository
	wallets   *wallet.Service
	registry  session.Registry
	publisher events.Publisher
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewCoordinator wires the settlement coordinator.
func NewCoordinator(sessions game.Repository, wallets *wallet.Service, registry session.Registry, publisher events.Publisher, notifier notification.Notifier, logger *slog.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		sessions:  sessions,
		wallets:   wallets,
		registry:  registry,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

// Settle pays the session's pot to the winner and closes the session. The
// ledger release is idempotent and runs before the status transition, so a
// crash between the two is repaired by retrying: money never moves twice and
// the session still reaches its terminal state.
func (c *Coordinator) Settle(ctx context.Context, sessionID string, winnerID int64, forfeit bool) error {
	start := time.Now()

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return nil
	}
	if sess.Status != game.StatusActive {
		return game.ErrNotActive
	}
	if !sess.IsParticipant(winnerID) {
		return fmt.Errorf("winner %d is not a participant of session %s", winnerID, sessionID)
	}

	release, err := c.wallets.ReleaseStake(ctx, sessionID, &winnerID)
	if err != nil {
		return err
	}

	moved, err := c.sessions.Transition(ctx, sessionID, game.StatusActive, game.StatusSettled, &winnerID)
	if err != nil {
		return err
	}
	if !moved {
		// Another settle won the transition; the release above was a replay.
		return nil
	}

	if err := c.registry.Release(ctx, sess.Participants()...); err != nil {
		c.logger.Error("registry release failed", "session_id", sessionID, "error", err)
	}

	metrics.GamesSettled.Inc()
	metrics.ActiveSessions.Dec()
	if forfeit {
		metrics.Forfeits.Inc()
	}
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	if err := c.publisher.PublishGameSettled(ctx, events.GameSettled{
		SessionID: sessionID,
		WinnerID:  &winnerID,
		Pot:       release.Pot,
		Forfeit:   forfeit,
	}); err != nil {
		c.logger.Error("settlement event publish failed", "session_id", sessionID, "error", err)
	}

	c.notifyOutcome(ctx, sess, winnerID, release.Pot, forfeit)
	c.logger.Info("session settled", "session_id", sessionID, "winner_id", winnerID, "pot", release.Pot, "forfeit", forfeit)
	return nil
}

func (c *Coordinator) notifyOutcome(ctx context.Context, sess game.Session, winnerID, pot int64, forfeit bool) {
	if c.notifier == nil {
		return
	}
	winBody := fmt.Sprintf("You won the pot of %s", config.FormatAmount(pot))
	loseBody := "You lost the game"
	if forfeit {
		loseBody = "You forfeited the game by missing the move deadline"
	}
	_ = c.notifier.Send(ctx, notification.Message{Kind: notification.KindGameSettled, Destination: winnerID, Body: winBody})
	if loser, ok := sess.OpponentOf(winnerID); ok {
		_ = c.notifier.Send(ctx, notification.Message{Kind: notification.KindGameSettled, Destination: loser, Body: loseBody})
	}
}
