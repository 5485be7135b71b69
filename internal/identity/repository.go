package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users.
type Repository interface {
	// Ensure inserts the user if absent and returns the stored row either way.
	Ensure(ctx context.Context, id int64, username string) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	// SetPhone stores the phone and moves the user to the given status,
	// failing with ErrPhoneTaken when another user owns the number.
	SetPhone(ctx context.Context, id int64, phone string, status Status) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure upserts the user row, keeping existing status and phone.
func (r *PostgresRepository) Ensure(ctx context.Context, id int64, username string) (User, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO users (id, username, status, created_at)
        VALUES ($1, NULLIF($2, ''), $3, $4)
        ON CONFLICT (id) DO UPDATE SET username = COALESCE(NULLIF($2, ''), users.username)
        RETURNING id, COALESCE(username, ''), COALESCE(phone, ''), status, created_at`,
		id, username, StatusUnverified, time.Now().UTC())
	return scanUser(row)
}

// Get fetches a user by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, COALESCE(username, ''), COALESCE(phone, ''), status, created_at
        FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SetPhone binds the unique phone number and updates the status.
func (r *PostgresRepository) SetPhone(ctx context.Context, id int64, phone string, status Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET phone = $2, status = $3 WHERE id = $1`, id, phone, status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPhoneTaken
		}
		return fmt.Errorf("set phone: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateStatus moves the user's verification status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var createdAt time.Time
	if err := row.Scan(&u.ID, &u.Username, &u.Phone, &u.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = createdAt.UTC()
	return u, nil
}
