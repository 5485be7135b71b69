package session

import (
	"context"
	"sync"
)

type memoryRegistry struct {
	mu       sync.Mutex
	bindings map[int64]string
}

// NewMemoryRegistry constructs an in-memory registry for tests and
// single-process deployments.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{bindings: make(map[int64]string)}
}

func (r *memoryRegistry) Bind(_ context.Context, userID int64, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, bound := r.bindings[userID]; bound {
		return ErrAlreadyInSession
	}
	r.bindings[userID] = sessionID
	return nil
}

func (r *memoryRegistry) ActiveSession(_ context.Context, userID int64) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, bound := r.bindings[userID]
	return sid, bound, nil
}

func (r *memoryRegistry) Release(_ context.Context, userIDs ...int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, uid := range userIDs {
		delete(r.bindings, uid)
	}
	return nil
}
