package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidAmount occurs when an operation is requested with a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the user's derived balance cannot
	// cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the provided external reference already
	// exists and therefore the operation should be treated as idempotent.
	ErrDuplicateReference = errors.New("duplicate external reference")

	// ErrEntryNotFound indicates no ledger entry matches the lookup.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyResolved indicates a pending entry was already confirmed or
	// failed; the returned entry carries the recorded outcome.
	ErrAlreadyResolved = errors.New("entry already resolved")

	// ErrAlreadyReleased indicates the session's pot was already paid out or
	// refunded; the returned release carries the recorded outcome.
	ErrAlreadyReleased = errors.New("session stakes already released")

	// ErrStorageUnavailable wraps backend failures so callers can distinguish
	// infrastructure trouble from domain rejections.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindWithdrawal   Kind = "withdrawal"
	KindStakeHold    Kind = "stake_hold"
	KindStakeRelease Kind = "stake_release"
	KindPayout       Kind = "payout"
	KindRefund       Kind = "refund"
)

// Status tracks an entry through its lifecycle. Only confirmed entries count
// toward a user's balance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Entry is one immutable record in a user's transaction log. Amount is signed
// cents: credits positive, debits negative.
type Entry struct {
	ID          string
	UserID      int64
	Amount      int64
	Kind        Kind
	SessionID   string
	ExternalRef string
	Status      Status
	CreatedAt   time.Time
}

// Release captures the terminal resolution of a session's pot.
type Release struct {
	SessionID string
	WinnerID  *int64
	Pot       int64
	Entries   []Entry
}

// Store is the contract implemented by ledger backends. Every method is a
// single atomic operation: appends for the same user serialize, and the
// balance check and the append happen inside one transaction boundary.
type Store interface {
	// Deposit appends a pending deposit entry keyed by externalRef. A second
	// call with the same reference returns the prior entry together with
	// ErrDuplicateReference instead of crediting again.
	Deposit(ctx context.Context, userID, amount int64, externalRef string) (Entry, error)

	// ResolveDeposit flips a pending deposit to confirmed or failed exactly
	// once. A replay returns the recorded entry with ErrAlreadyResolved.
	ResolveDeposit(ctx context.Context, externalRef string, success bool) (Entry, error)

	// Withdraw appends a confirmed negative entry after re-deriving the
	// balance inside the transaction.
	Withdraw(ctx context.Context, userID, amount int64) (Entry, error)

	// HoldStake escrows amount against sessionID; the hold immediately
	// reduces the balance available to further holds and withdrawals.
	HoldStake(ctx context.Context, userID int64, sessionID string, amount int64) (Entry, error)

	// ReleaseStake resolves a session's pot: pays the full pot to winnerID,
	// or refunds each participant's own stake when winnerID is nil. A second
	// call returns the recorded outcome with ErrAlreadyReleased.
	ReleaseStake(ctx context.Context, sessionID string, winnerID *int64) (Release, error)

	// RefundStake returns one user's outstanding hold for a session without
	// touching the other participant's escrow. Used to unwind the loser of a
	// join race before the session ever activates.
	RefundStake(ctx context.Context, userID int64, sessionID string) (Entry, error)

	// Balance is the signed sum of the user's confirmed entries.
	Balance(ctx context.Context, userID int64) (int64, error)

	ListEntries(ctx context.Context, userID int64) ([]Entry, error)
	SessionEntries(ctx context.Context, sessionID string) ([]Entry, error)
	FindByExternalRef(ctx context.Context, ref string) (Entry, error)
}

// sessionResolution summarizes the escrow state of one session derived from
// its confirmed entries.
type sessionResolution struct {
	// outstanding maps each participant to the cents still escrowed
	// (holds net of any targeted refunds).
	outstanding map[int64]int64
	pot         int64
	// prior holds the entries that already resolved the pot, when done.
	prior []Entry
	done  bool
}

func resolveSession(entries []Entry) sessionResolution {
	net := make(map[int64]int64)
	var payouts, refunds []Entry
	var sawHold bool
	for _, e := range entries {
		if e.Status != StatusConfirmed {
			continue
		}
		switch e.Kind {
		case KindStakeHold:
			net[e.UserID] += e.Amount
			sawHold = true
		case KindRefund:
			net[e.UserID] += e.Amount
			refunds = append(refunds, e)
		case KindPayout:
			payouts = append(payouts, e)
		}
	}

	res := sessionResolution{outstanding: make(map[int64]int64)}
	for uid, n := range net {
		if n < 0 {
			res.outstanding[uid] = -n
			res.pot += -n
		}
	}

	switch {
	case len(payouts) > 0:
		res.done = true
		res.prior = payouts
	case len(res.outstanding) == 0 && sawHold && len(refunds) > 0:
		res.done = true
		res.prior = refunds
	}
	return res
}
