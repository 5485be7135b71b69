package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu        sync.Mutex
	entries   []Entry
	byRef     map[string]int
	bySession map[string][]int
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for
// unit tests and local development without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		byRef:     make(map[string]int),
		bySession: make(map[string][]int),
	}
}

func (s *inMemoryStore) Deposit(_ context.Context, userID, amount int64, externalRef string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, exists := s.byRef[externalRef]; exists {
		return s.entries[idx], ErrDuplicateReference
	}

	entry := s.append(Entry{
		UserID:      userID,
		Amount:      amount,
		Kind:        KindDeposit,
		ExternalRef: externalRef,
		Status:      StatusPending,
	})
	return entry, nil
}

func (s *inMemoryStore) ResolveDeposit(_ context.Context, externalRef string, success bool) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.byRef[externalRef]
	if !exists {
		return Entry{}, ErrEntryNotFound
	}
	if s.entries[idx].Status != StatusPending {
		return s.entries[idx], ErrAlreadyResolved
	}

	if success {
		s.entries[idx].Status = StatusConfirmed
	} else {
		s.entries[idx].Status = StatusFailed
	}
	return s.entries[idx], nil
}

func (s *inMemoryStore) Withdraw(_ context.Context, userID, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balanceLocked(userID) < amount {
		return Entry{}, ErrInsufficientFunds
	}

	return s.append(Entry{
		UserID: userID,
		Amount: -amount,
		Kind:   KindWithdrawal,
		Status: StatusConfirmed,
	}), nil
}

func (s *inMemoryStore) HoldStake(_ context.Context, userID int64, sessionID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balanceLocked(userID) < amount {
		return Entry{}, ErrInsufficientFunds
	}

	return s.append(Entry{
		UserID:    userID,
		Amount:    -amount,
		Kind:      KindStakeHold,
		SessionID: sessionID,
		Status:    StatusConfirmed,
	}), nil
}

func (s *inMemoryStore) ReleaseStake(_ context.Context, sessionID string, winnerID *int64) (Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := resolveSession(s.sessionEntriesLocked(sessionID))
	if res.done {
		return releaseFromEntries(sessionID, res.prior), ErrAlreadyReleased
	}
	if len(res.outstanding) == 0 {
		return Release{}, ErrEntryNotFound
	}

	release := Release{SessionID: sessionID, WinnerID: winnerID, Pot: res.pot}
	if winnerID != nil {
		release.Entries = append(release.Entries, s.append(Entry{
			UserID:    *winnerID,
			Amount:    res.pot,
			Kind:      KindPayout,
			SessionID: sessionID,
			Status:    StatusConfirmed,
		}))
	} else {
		for uid, held := range res.outstanding {
			release.Entries = append(release.Entries, s.append(Entry{
				UserID:    uid,
				Amount:    held,
				Kind:      KindRefund,
				SessionID: sessionID,
				Status:    StatusConfirmed,
			}))
		}
	}
	return release, nil
}

func (s *inMemoryStore) RefundStake(_ context.Context, userID int64, sessionID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := resolveSession(s.sessionEntriesLocked(sessionID))
	if res.done {
		return Entry{}, ErrAlreadyReleased
	}
	held, ok := res.outstanding[userID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return s.append(Entry{
		UserID:    userID,
		Amount:    held,
		Kind:      KindRefund,
		SessionID: sessionID,
		Status:    StatusConfirmed,
	}), nil
}

func (s *inMemoryStore) Balance(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

func (s *inMemoryStore) ListEntries(_ context.Context, userID int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *inMemoryStore) SessionEntries(_ context.Context, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionEntriesLocked(sessionID), nil
}

func (s *inMemoryStore) sessionEntriesLocked(sessionID string) []Entry {
	var out []Entry
	for _, idx := range s.bySession[sessionID] {
		out = append(out, s.entries[idx])
	}
	return out
}

func (s *inMemoryStore) FindByExternalRef(_ context.Context, ref string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, exists := s.byRef[ref]; exists {
		return s.entries[idx], nil
	}
	return Entry{}, ErrEntryNotFound
}

// append stamps identity and indexes the entry. Caller holds the lock.
func (s *inMemoryStore) append(e Entry) Entry {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	idx := len(s.entries)
	s.entries = append(s.entries, e)
	if e.ExternalRef != "" {
		s.byRef[e.ExternalRef] = idx
	}
	if e.SessionID != "" {
		s.bySession[e.SessionID] = append(s.bySession[e.SessionID], idx)
	}
	return e
}

func (s *inMemoryStore) balanceLocked(userID int64) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID && e.Status == StatusConfirmed {
			sum += e.Amount
		}
	}
	return sum
}

func releaseFromEntries(sessionID string, entries []Entry) Release {
	release := Release{SessionID: sessionID, Entries: entries}
	for _, e := range entries {
		release.Pot += e.Amount
		if e.Kind == KindPayout {
			winner := e.UserID
			release.WinnerID = &winner
		}
	}
	return release
}
