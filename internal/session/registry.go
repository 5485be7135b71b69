package session

import (
	"context"
	"errors"
)

// ErrAlreadyInSession occurs when a user bound to a non-terminal session
// attempts to enter another one.
var ErrAlreadyInSession = errors.New("user already in a session")

// Registry indexes which session, if any, each user is currently bound to.
// Bind is an atomic check-and-bind: two racing binds for one user must not
// both succeed.
type Registry interface {
	Bind(ctx context.Context, userID int64, sessionID string) error
	ActiveSession(ctx context.Context, userID int64) (string, bool, error)
	Release(ctx context.Context, userIDs ...int64) error
}
