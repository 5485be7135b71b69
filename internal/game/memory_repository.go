package game

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryRepository constructs an in-memory session repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{sessions: make(map[string]Session)}
}

func (r *memoryRepository) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *memoryRepository) Activate(_ context.Context, id string, opponentID, turnOwnerID, pot int64, board []byte, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != StatusLobby || s.OpponentID != nil {
		return false, nil
	}
	s.OpponentID = &opponentID
	s.TurnOwnerID = &turnOwnerID
	s.Pot = pot
	s.Board = board
	s.Status = StatusActive
	s.LastAction = now.UTC()
	s.UpdatedAt = now.UTC()
	r.sessions[id] = s
	return true, nil
}

func (r *memoryRepository) RecordMove(_ context.Context, id string, board []byte, turnOwnerID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != StatusActive {
		return ErrNotActive
	}
	s.Board = board
	s.TurnOwnerID = &turnOwnerID
	s.LastAction = now.UTC()
	s.UpdatedAt = now.UTC()
	r.sessions[id] = s
	return nil
}

func (r *memoryRepository) Transition(_ context.Context, id string, from, to Status, winnerID *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.WinnerID = winnerID
	s.UpdatedAt = time.Now().UTC()
	r.sessions[id] = s
	return true, nil
}

func (r *memoryRepository) ListActiveBefore(_ context.Context, cutoff time.Time) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.Status == StatusActive && !s.LastAction.IsZero() && s.LastAction.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}
