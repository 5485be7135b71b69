package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists game sessions. State-changing methods are guarded by
// the current status so racing transitions resolve to exactly one winner.
type Repository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)

	// Activate claims the lobby's opponent slot and starts the game. Returns
	// false when the session is no longer an open lobby.
	Activate(ctx context.Context, id string, opponentID, turnOwnerID, pot int64, board []byte, now time.Time) (bool, error)

	// RecordMove stores the new board and turn owner for an active session.
	RecordMove(ctx context.Context, id string, board []byte, turnOwnerID int64, now time.Time) error

	// Transition moves the session from one status to another, recording a
	// winner for settled sessions. Returns false when the session was not in
	// the expected status.
	Transition(ctx context.Context, id string, from, to Status, winnerID *int64) (bool, error)

	// ListActiveBefore returns active sessions whose last action is older
	// than the cutoff, for turn-timeout forfeiture.
	ListActiveBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// PostgresRepository stores sessions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id::text, creator_id, opponent_id, stake, win_condition, pot, turn_owner_id,
        COALESCE(board, '{}'::jsonb), status, winner_id, last_action, created_at, updated_at`

// Create inserts a lobby session.
func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	_, err := r.db.Exec(ctx, `INSERT INTO game_sessions
        (id, creator_id, stake, win_condition, pot, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		s.ID, s.CreatorID, s.Stake, s.WinCondition, s.Pot, s.Status, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get fetches one session by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Activate atomically claims the opponent slot; exactly one of two racing
// joins can succeed.
func (r *PostgresRepository) Activate(ctx context.Context, id string, opponentID, turnOwnerID, pot int64, board []byte, now time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE game_sessions
        SET opponent_id = $2, turn_owner_id = $3, pot = $4, board = $5,
            status = 'active', last_action = $6, updated_at = $6
        WHERE id = $1 AND status = 'lobby' AND opponent_id IS NULL`,
		id, opponentID, turnOwnerID, pot, board, now.UTC())
	if err != nil {
		return false, fmt.Errorf("activate session: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// RecordMove persists the board and passes the turn.
func (r *PostgresRepository) RecordMove(ctx context.Context, id string, board []byte, turnOwnerID int64, now time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE game_sessions
        SET board = $2, turn_owner_id = $3, last_action = $4, updated_at = $4
        WHERE id = $1 AND status = 'active'`,
		id, board, turnOwnerID, now.UTC())
	if err != nil {
		return fmt.Errorf("record move: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}

// Transition performs a guarded status change.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to Status, winnerID *int64) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE game_sessions
        SET status = $3, winner_id = $4, updated_at = now()
        WHERE id = $1 AND status = $2`,
		id, from, to, winnerID)
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// ListActiveBefore returns stale active sessions for the timeout sweep.
func (r *PostgresRepository) ListActiveBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+` FROM game_sessions
        WHERE status = 'active' AND last_action < $1`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	var lastAction *time.Time
	err := row.Scan(&s.ID, &s.CreatorID, &s.OpponentID, &s.Stake, &s.WinCondition, &s.Pot,
		&s.TurnOwnerID, &s.Board, &s.Status, &s.WinnerID, &lastAction, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if lastAction != nil {
		s.LastAction = lastAction.UTC()
	}
	return s, nil
}
