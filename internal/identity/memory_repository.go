package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.Mutex
	users map[int64]User
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[int64]User)}
}

func (r *memoryRepository) Ensure(_ context.Context, id int64, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		if username != "" {
			u.Username = username
			r.users[id] = u
		}
		return u, nil
	}
	u := User{ID: id, Username: username, Status: StatusUnverified, CreatedAt: time.Now().UTC()}
	r.users[id] = u
	return u, nil
}

func (r *memoryRepository) Get(_ context.Context, id int64) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *memoryRepository) SetPhone(_ context.Context, id int64, phone string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, u := range r.users {
		if uid != id && u.Phone == phone {
			return ErrPhoneTaken
		}
	}
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Phone = phone
	u.Status = status
	r.users[id] = u
	return nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	r.users[id] = u
	return nil
}
