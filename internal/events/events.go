package events

import "time"

const (
	// TopicGameSettled carries terminal game outcomes.
	TopicGameSettled = "game_settled"
	// TopicDepositConfirmed carries confirmed wallet deposits.
	TopicDepositConfirmed = "deposit_confirmed"
)

// GameSettled is emitted once per session when the pot is resolved.
type GameSettled struct {
	SessionID string    `json:"sessionId"`
	WinnerID  *int64    `json:"winnerId,omitempty"`
	Pot       int64     `json:"potCents"`
	Forfeit   bool      `json:"forfeit"`
	Ts        time.Time `json:"ts"`
}

// DepositConfirmed is emitted when a provider callback credits a wallet.
type DepositConfirmed struct {
	UserID      int64     `json:"userId"`
	Amount      int64     `json:"amountCents"`
	ProviderRef string    `json:"providerRef"`
	Ts          time.Time `json:"ts"`
}
