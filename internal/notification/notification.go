package notification

import (
	"context"
	"log/slog"
)

const (
	// KindDepositConfirmed indicates a provider callback credited the wallet.
	KindDepositConfirmed = "deposit_confirmed"
	// KindDepositFailed indicates the provider rejected the deposit.
	KindDepositFailed = "deposit_failed"
	// KindWithdrawalPaid indicates a withdrawal payout was instructed.
	KindWithdrawalPaid = "withdrawal_paid"
	// KindGameSettled indicates a session's pot was paid to the winner.
	KindGameSettled = "game_settled"
	// KindLobbyCancelled indicates a lobby was cancelled and stakes refunded.
	KindLobbyCancelled = "lobby_cancelled"
)

// Message describes a notification payload delivered to the chat transport.
type Message struct {
	Kind        string
	Destination int64
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
