package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errDuplicateKey marks a unique-constraint violation so call sites can map
// it to the right domain sentinel.
var errDuplicateKey = errors.New("duplicate key")

// PostgresStore persists the transaction log in PostgreSQL. Appends for one
// user serialize on the users row lock so the derived balance stays
// consistent under concurrent mutations.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	lockUserQuery = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	lockSessionScopeQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	insertEntryQuery = `INSERT INTO ledger_entries (id, user_id, amount, kind, session_id, external_ref, status, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, ''), $7, $8)`

	confirmedBalanceQuery = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
        WHERE user_id = $1 AND status = 'confirmed'`

	selectEntryColumns = `id::text, user_id, amount, kind, COALESCE(session_id::text, ''), COALESCE(external_ref, ''), status, created_at`
)

// Deposit records a pending credit keyed by the provider reference. The
// external_ref lookup and the insert share one transaction so a concurrent
// duplicate cannot slip between them.
func (s *PostgresStore) Deposit(ctx context.Context, userID, amount int64, externalRef string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, storageErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockUser(ctx, tx, userID); err != nil {
		return Entry{}, err
	}

	if prior, err := findByRef(ctx, tx, externalRef); err == nil {
		return prior, ErrDuplicateReference
	} else if !errors.Is(err, ErrEntryNotFound) {
		return Entry{}, err
	}

	entry := newEntry(userID, amount, KindDeposit, "", externalRef, StatusPending)
	if err := insertEntry(ctx, tx, entry); err != nil {
		if errors.Is(err, errDuplicateKey) {
			// A concurrent deposit under a different user row landed the
			// reference first; surface its entry, not a storage failure.
			_ = tx.Rollback(ctx)
			if prior, lookupErr := s.FindByExternalRef(ctx, externalRef); lookupErr == nil {
				return prior, ErrDuplicateReference
			}
		}
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, storageErr("commit", err)
	}
	return entry, nil
}

// ResolveDeposit confirms or fails a pending deposit exactly once.
func (s *PostgresStore) ResolveDeposit(ctx context.Context, externalRef string, success bool) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, storageErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+selectEntryColumns+` FROM ledger_entries WHERE external_ref = $1 FOR UPDATE`, externalRef)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusPending {
		return entry, ErrAlreadyResolved
	}

	status := StatusFailed
	if success {
		status = StatusConfirmed
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $1 WHERE id = $2`, status, entry.ID); err != nil {
		return Entry{}, storageErr("resolve deposit", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, storageErr("commit", err)
	}
	entry.Status = status
	return entry, nil
}

// Withdraw debits the user after re-deriving the balance under the row lock,
// leaving no gap versus a concurrent hold or withdrawal.
func (s *PostgresStore) Withdraw(ctx context.Context, userID, amount int64) (Entry, error) {
	return s.debit(ctx, userID, amount, KindWithdrawal, "")
}

// HoldStake escrows the stake against the session.
func (s *PostgresStore) HoldStake(ctx context.Context, userID int64, sessionID string, amount int64) (Entry, error) {
	return s.debit(ctx, userID, amount, KindStakeHold, sessionID)
}

func (s *PostgresStore) debit(ctx context.Context, userID, amount int64, kind Kind, sessionID string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, storageErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockUser(ctx, tx, userID); err != nil {
		return Entry{}, err
	}

	var balance int64
	if err := tx.QueryRow(ctx, confirmedBalanceQuery, userID).Scan(&balance); err != nil {
		return Entry{}, storageErr("derive balance", err)
	}
	if balance < amount {
		return Entry{}, ErrInsufficientFunds
	}

	entry := newEntry(userID, -amount, kind, sessionID, "", StatusConfirmed)
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, storageErr("commit", err)
	}
	return entry, nil
}

// ReleaseStake resolves the session pot once. An advisory lock on the session
// id serializes releases across processes before the entry scan runs, so the
// later transaction reads the earlier one's committed outcome instead of
// paying again; participant rows are then locked in ascending id order so two
// releases for overlapping users cannot deadlock.
func (s *PostgresStore) ReleaseStake(ctx context.Context, sessionID string, winnerID *int64) (Release, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Release{}, storageErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockSessionScope(ctx, tx, sessionID); err != nil {
		return Release{}, err
	}

	entries, err := sessionEntries(ctx, tx, sessionID, true)
	if err != nil {
		return Release{}, err
	}

	res := resolveSession(entries)
	if res.done {
		return releaseFromEntries(sessionID, res.prior), ErrAlreadyReleased
	}
	if len(res.outstanding) == 0 {
		return Release{}, ErrEntryNotFound
	}

	participants := make([]int64, 0, len(res.outstanding))
	for uid := range res.outstanding {
		participants = append(participants, uid)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	for _, uid := range participants {
		if err := lockUser(ctx, tx, uid); err != nil {
			return Release{}, err
		}
	}

	release := Release{SessionID: sessionID, WinnerID: winnerID, Pot: res.pot}
	if winnerID != nil {
		payout := newEntry(*winnerID, res.pot, KindPayout, sessionID, "", StatusConfirmed)
		if err := insertEntry(ctx, tx, payout); err != nil {
			return s.recordedRelease(ctx, tx, sessionID, err)
		}
		release.Entries = append(release.Entries, payout)
	} else {
		for _, uid := range participants {
			refund := newEntry(uid, res.outstanding[uid], KindRefund, sessionID, "", StatusConfirmed)
			if err := insertEntry(ctx, tx, refund); err != nil {
				return s.recordedRelease(ctx, tx, sessionID, err)
			}
			release.Entries = append(release.Entries, refund)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Release{}, storageErr("commit", err)
	}
	return release, nil
}

// RefundStake unwinds one user's hold for a session that never resolved,
// leaving other participants' escrow untouched. It takes the same per-session
// advisory lock as ReleaseStake so a refund cannot race a release.
func (s *PostgresStore) RefundStake(ctx context.Context, userID int64, sessionID string) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, storageErr("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockSessionScope(ctx, tx, sessionID); err != nil {
		return Entry{}, err
	}
	if err := lockUser(ctx, tx, userID); err != nil {
		return Entry{}, err
	}

	entries, err := sessionEntries(ctx, tx, sessionID, true)
	if err != nil {
		return Entry{}, err
	}
	res := resolveSession(entries)
	if res.done {
		return Entry{}, ErrAlreadyReleased
	}
	held, ok := res.outstanding[userID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}

	refund := newEntry(userID, held, KindRefund, sessionID, "", StatusConfirmed)
	if err := insertEntry(ctx, tx, refund); err != nil {
		if errors.Is(err, errDuplicateKey) {
			return Entry{}, ErrAlreadyReleased
		}
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, storageErr("commit", err)
	}
	return refund, nil
}

// Balance returns the signed sum of the user's confirmed entries.
func (s *PostgresStore) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	if err := s.db.QueryRow(ctx, confirmedBalanceQuery, userID).Scan(&balance); err != nil {
		return 0, storageErr("derive balance", err)
	}
	return balance, nil
}

// ListEntries returns the user's transaction log, oldest first.
func (s *PostgresStore) ListEntries(ctx context.Context, userID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectEntryColumns+`
        FROM ledger_entries WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// SessionEntries returns every entry tagged with the session.
func (s *PostgresStore) SessionEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectEntryColumns+`
        FROM ledger_entries WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, storageErr("session entries", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// FindByExternalRef fetches an entry by its idempotency key.
func (s *PostgresStore) FindByExternalRef(ctx context.Context, ref string) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectEntryColumns+` FROM ledger_entries WHERE external_ref = $1`, ref)
	return scanEntry(row)
}

// lockSessionScope takes a transaction-scoped advisory lock keyed by the
// session id. Unlike row locks, it also covers entries a concurrent
// transaction is about to insert: the waiter resumes after the holder commits
// and its next statement sees the committed rows.
func lockSessionScope(ctx context.Context, tx pgx.Tx, sessionID string) error {
	if _, err := tx.Exec(ctx, lockSessionScopeQuery, sessionID); err != nil {
		return storageErr("lock session", err)
	}
	return nil
}

// recordedRelease handles a unique-index rejection of a payout or refund row:
// the session was resolved by someone else, so report that outcome.
func (s *PostgresStore) recordedRelease(ctx context.Context, tx pgx.Tx, sessionID string, cause error) (Release, error) {
	if !errors.Is(cause, errDuplicateKey) {
		return Release{}, cause
	}
	_ = tx.Rollback(ctx)
	entries, err := s.SessionEntries(ctx, sessionID)
	if err != nil {
		return Release{}, err
	}
	if res := resolveSession(entries); res.done {
		return releaseFromEntries(sessionID, res.prior), ErrAlreadyReleased
	}
	return Release{}, cause
}

func lockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	var id int64
	if err := tx.QueryRow(ctx, lockUserQuery, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user %d not found", userID)
		}
		return storageErr("lock user", err)
	}
	return nil
}

func findByRef(ctx context.Context, tx pgx.Tx, ref string) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectEntryColumns+` FROM ledger_entries WHERE external_ref = $1`, ref)
	return scanEntry(row)
}

func sessionEntries(ctx context.Context, tx pgx.Tx, sessionID string, lock bool) ([]Entry, error) {
	query := `SELECT ` + selectEntryColumns + ` FROM ledger_entries WHERE session_id = $1 ORDER BY created_at, id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := tx.Query(ctx, query, sessionID)
	if err != nil {
		return nil, storageErr("session entries", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	if _, err := tx.Exec(ctx, insertEntryQuery,
		e.ID, e.UserID, e.Amount, e.Kind, e.SessionID, e.ExternalRef, e.Status, e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", errDuplicateKey, pgErr.ConstraintName)
		}
		return storageErr("insert entry", err)
	}
	return nil
}

func newEntry(userID, amount int64, kind Kind, sessionID, externalRef string, status Status) Entry {
	return Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		SessionID:   sessionID,
		ExternalRef: externalRef,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.SessionID, &e.ExternalRef, &e.Status, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, storageErr("scan entry", err)
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.SessionID, &e.ExternalRef, &e.Status, &e.CreatedAt); err != nil {
			return nil, storageErr("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate entries", err)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
