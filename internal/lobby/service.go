package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/metrics"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/session"
	"github.com/yeab-games/game_zone/internal/wallet"
)

var (
	// ErrInvalidStake indicates the stake is not one of the allowed amounts.
	ErrInvalidStake = errors.New("stake not allowed")

	// ErrInvalidWinCondition indicates the tokens-home target is out of range.
	ErrInvalidWinCondition = errors.New("win condition out of range")

	// ErrSelfJoin indicates a creator tried to join their own lobby.
	ErrSelfJoin = errors.New("cannot join own session")

	// ErrSessionNotJoinable indicates the lobby no longer accepts an opponent.
	ErrSessionNotJoinable = errors.New("session not joinable")

	// ErrSessionStarted indicates a cancel arrived after an opponent joined.
	ErrSessionStarted = errors.New("session already started")

	// ErrNotCreator indicates only the creator may cancel a lobby.
	ErrNotCreator = errors.New("only the creator can cancel")
)

// Verifier gates game entry on completed phone verification.
type Verifier interface {
	RequireVerified(ctx context.Context, userID int64) (identity.User, error)
}

// Service runs the lobby lifecycle: creation with an escrowed stake, the
// join race for the opponent slot, and pre-start cancellation.
type Service struct {
	sessions game.Repository
	registry session.Registry
	wallets  *wallet.Service
	users    Verifier
	rules    game.Rules
	cfg      config.Config
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wires the lobby service.
func NewService(sessions game.Repository, registry session.Registry, wallets *wallet.Service, users Verifier, rules game.Rules, cfg config.Config, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		registry: registry,
		wallets:  wallets,
		users:    users,
		rules:    rules,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// Create opens a lobby with the creator's stake escrowed. The creator is
// bound to the session before money moves, so a user can never hold stakes
// in two sessions at once.
func (s *Service) Create(ctx context.Context, creatorID, stake int64, winCondition int) (game.Session, error) {
	if _, err := s.users.RequireVerified(ctx, creatorID); err != nil {
		return game.Session{}, err
	}
	if !s.cfg.StakeAllowed(stake) {
		return game.Session{}, fmt.Errorf("%w: %s", ErrInvalidStake, config.FormatAmount(stake))
	}
	if winCondition < 1 || winCondition > s.cfg.MaxWinTokens {
		return game.Session{}, fmt.Errorf("%w: %d", ErrInvalidWinCondition, winCondition)
	}

	sessionID := uuid.NewString()
	if err := s.registry.Bind(ctx, creatorID, sessionID); err != nil {
		return game.Session{}, err
	}
	if _, err := s.wallets.HoldStake(ctx, creatorID, sessionID, stake); err != nil {
		_ = s.registry.Release(ctx, creatorID)
		return game.Session{}, err
	}

	now := time.Now().UTC()
	sess := game.Session{
		ID:           sessionID,
		CreatorID:    creatorID,
		Stake:        stake,
		WinCondition: winCondition,
		Pot:          stake,
		Status:       game.StatusLobby,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		_ = s.wallets.RefundStake(ctx, creatorID, sessionID)
		_ = s.registry.Release(ctx, creatorID)
		return game.Session{}, err
	}

	metrics.GamesCreated.Inc()
	s.logger.Info("lobby created", "session_id", sessionID, "creator_id", creatorID, "stake", stake)
	return sess, nil
}

// Join claims the opponent slot and starts the game. Two joins can race for
// one lobby; the guarded activation picks the winner, and the loser's stake
// hold is unwound.
func (s *Service) Join(ctx context.Context, sessionID string, joinerID int64) (game.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return game.Session{}, err
	}
	if sess.Status != game.StatusLobby || sess.OpponentID != nil {
		return game.Session{}, ErrSessionNotJoinable
	}
	if sess.CreatorID == joinerID {
		return game.Session{}, ErrSelfJoin
	}
	if _, err := s.users.RequireVerified(ctx, joinerID); err != nil {
		return game.Session{}, err
	}

	if err := s.registry.Bind(ctx, joinerID, sessionID); err != nil {
		return game.Session{}, err
	}
	if _, err := s.wallets.HoldStake(ctx, joinerID, sessionID, sess.Stake); err != nil {
		_ = s.registry.Release(ctx, joinerID)
		return game.Session{}, err
	}

	board, err := s.rules.NewBoard([2]int64{sess.CreatorID, joinerID}, sess.WinCondition)
	if err != nil {
		s.unwindJoin(ctx, joinerID, sessionID)
		return game.Session{}, err
	}

	now := time.Now().UTC()
	claimed, err := s.sessions.Activate(ctx, sessionID, joinerID, sess.CreatorID, 2*sess.Stake, board, now)
	if err != nil {
		s.unwindJoin(ctx, joinerID, sessionID)
		return game.Session{}, err
	}
	if !claimed {
		// Lost the race for the opponent slot.
		s.unwindJoin(ctx, joinerID, sessionID)
		return game.Session{}, ErrSessionNotJoinable
	}

	metrics.ActiveSessions.Inc()
	s.logger.Info("game started", "session_id", sessionID, "creator_id", sess.CreatorID, "opponent_id", joinerID)
	return s.sessions.Get(ctx, sessionID)
}

// Cancel tears down a lobby before an opponent joins, refunding the
// creator's stake. The guarded transition decides the cancel-versus-join
// race first; the refund after it is idempotent, so retrying a cancel whose
// refund failed mid-way repairs the escrow instead of stranding it.
func (s *Service) Cancel(ctx context.Context, sessionID string, userID int64) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CreatorID != userID {
		return ErrNotCreator
	}

	moved, err := s.sessions.Transition(ctx, sessionID, game.StatusLobby, game.StatusCancelled, nil)
	if err != nil {
		return err
	}
	if !moved {
		current, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.Status != game.StatusCancelled {
			return ErrSessionStarted
		}
		// Replay: fall through so a refund that failed after the status
		// flipped still completes.
	}

	if _, err := s.wallets.ReleaseStake(ctx, sessionID, nil); err != nil {
		return err
	}
	if err := s.registry.Release(ctx, userID); err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.notify(ctx, userID, fmt.Sprintf("Your lobby was cancelled and %s refunded", config.FormatAmount(sess.Stake)))
	s.logger.Info("lobby cancelled", "session_id", sessionID, "creator_id", userID)
	return nil
}

func (s *Service) unwindJoin(ctx context.Context, joinerID int64, sessionID string) {
	if err := s.wallets.RefundStake(ctx, joinerID, sessionID); err != nil {
		s.logger.Error("join unwind refund failed", "session_id", sessionID, "user_id", joinerID, "error", err)
	}
	if err := s.registry.Release(ctx, joinerID); err != nil {
		s.logger.Error("join unwind release failed", "session_id", sessionID, "user_id", joinerID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, userID int64, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: notification.KindLobbyCancelled, Destination: userID, Body: body})
}
