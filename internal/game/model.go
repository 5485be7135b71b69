package game

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound indicates no session exists with the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadyTerminal indicates the session was already settled or cancelled.
	ErrAlreadyTerminal = errors.New("session already terminal")

	// ErrNotActive indicates the session has not started yet.
	ErrNotActive = errors.New("session is not active")

	// ErrIllegalMove indicates a move the rules engine rejected; board state
	// and turn ownership are unchanged.
	ErrIllegalMove = errors.New("illegal move")

	// ErrNotYourTurn indicates the submitter is not the current turn owner.
	ErrNotYourTurn = fmt.Errorf("%w: not your turn", ErrIllegalMove)
)

// Status tracks a session through its lifecycle. Settled and cancelled are
// terminal; cancelled is reachable only from lobby.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Session is one staked two-player game from lobby to settlement.
type Session struct {
	ID           string
	CreatorID    int64
	OpponentID   *int64
	Stake        int64
	WinCondition int
	Pot          int64
	TurnOwnerID  *int64
	Board        []byte
	Status       Status
	WinnerID     *int64
	LastAction   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Participants lists the bound players: just the creator while in lobby.
func (s Session) Participants() []int64 {
	if s.OpponentID == nil {
		return []int64{s.CreatorID}
	}
	return []int64{s.CreatorID, *s.OpponentID}
}

// OpponentOf returns the other participant.
func (s Session) OpponentOf(userID int64) (int64, bool) {
	if s.OpponentID == nil {
		return 0, false
	}
	switch userID {
	case s.CreatorID:
		return *s.OpponentID, true
	case *s.OpponentID:
		return s.CreatorID, true
	}
	return 0, false
}

// IsParticipant reports whether the user is bound to this session.
func (s Session) IsParticipant(userID int64) bool {
	if userID == s.CreatorID {
		return true
	}
	return s.OpponentID != nil && userID == *s.OpponentID
}
