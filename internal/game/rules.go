package game

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Move is a player's submission: advance one of their tokens by a step count.
type Move struct {
	Token int `json:"token"`
	Steps int `json:"steps"`
}

// Outcome is the rules engine's verdict for one applied move.
type Outcome struct {
	Won      bool
	WinnerID int64
}

// Rules is the pluggable capability that owns board representation and move
// legality. The engine treats the board as an opaque payload, so game
// variants can share the session orchestration. Winner lets the engine tell
// a board whose race already finished apart from a genuinely stalled one.
type Rules interface {
	NewBoard(players [2]int64, target int) ([]byte, error)
	Apply(board []byte, playerID int64, mv Move) ([]byte, Outcome, error)
	Winner(board []byte) (int64, bool, error)
}

const (
	trackLength     = 20
	tokensPerPlayer = 4
	minSteps        = 1
	maxSteps        = 6
)

// TokenRace is a race-to-target rule set: each player owns four tokens on a
// 20-step track; a token that reaches the end is home, and having the target
// number of tokens home wins the game.
type TokenRace struct{}

// NewTokenRace returns the default rule set.
func NewTokenRace() TokenRace {
	return TokenRace{}
}

type raceBoard struct {
	Target int              `json:"target"`
	Tokens map[string][]int `json:"tokens"`
}

// NewBoard deals a fresh track for both players.
func (TokenRace) NewBoard(players [2]int64, target int) ([]byte, error) {
	if target < 1 || target > tokensPerPlayer {
		return nil, fmt.Errorf("win target %d out of range 1..%d", target, tokensPerPlayer)
	}
	board := raceBoard{
		Target: target,
		Tokens: map[string][]int{
			key(players[0]): make([]int, tokensPerPlayer),
			key(players[1]): make([]int, tokensPerPlayer),
		},
	}
	return json.Marshal(board)
}

// Apply advances one token. The returned board is a fresh payload; the input
// is never mutated, so a rejected move leaves no trace.
func (TokenRace) Apply(board []byte, playerID int64, mv Move) ([]byte, Outcome, error) {
	var state raceBoard
	if err := json.Unmarshal(board, &state); err != nil {
		return nil, Outcome{}, fmt.Errorf("decode board: %w", err)
	}

	tokens, ok := state.Tokens[key(playerID)]
	if !ok {
		return nil, Outcome{}, fmt.Errorf("%w: player %d not on this board", ErrIllegalMove, playerID)
	}
	if mv.Steps < minSteps || mv.Steps > maxSteps {
		return nil, Outcome{}, fmt.Errorf("%w: steps must be between %d and %d", ErrIllegalMove, minSteps, maxSteps)
	}
	if mv.Token < 0 || mv.Token >= len(tokens) {
		return nil, Outcome{}, fmt.Errorf("%w: no such token %d", ErrIllegalMove, mv.Token)
	}
	if tokens[mv.Token] >= trackLength {
		return nil, Outcome{}, fmt.Errorf("%w: token %d is already home", ErrIllegalMove, mv.Token)
	}

	next := make([]int, len(tokens))
	copy(next, tokens)
	next[mv.Token] += mv.Steps
	if next[mv.Token] > trackLength {
		next[mv.Token] = trackLength
	}
	state.Tokens[key(playerID)] = next

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("encode board: %w", err)
	}

	if home(next) >= state.Target {
		return encoded, Outcome{Won: true, WinnerID: playerID}, nil
	}
	return encoded, Outcome{}, nil
}

// Winner reports the player whose token count already meets the target, if
// any. Play stops at the first win, so at most one player can qualify.
func (TokenRace) Winner(board []byte) (int64, bool, error) {
	var state raceBoard
	if err := json.Unmarshal(board, &state); err != nil {
		return 0, false, fmt.Errorf("decode board: %w", err)
	}
	for k, tokens := range state.Tokens {
		if home(tokens) < state.Target {
			continue
		}
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("decode board: bad player key %q", k)
		}
		return id, true, nil
	}
	return 0, false, nil
}

func home(tokens []int) int {
	var n int
	for _, pos := range tokens {
		if pos >= trackLength {
			n++
		}
	}
	return n
}

func key(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}
