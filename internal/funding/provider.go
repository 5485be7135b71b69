package funding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Provider represents a connector to an external mobile money processor.
type Provider interface {
	InitiateDeposit(ctx context.Context, input DepositAuthorization) (DepositIntent, error)
	Payout(ctx context.Context, input PayoutAuthorization) (PayoutDecision, error)
}

// DepositAuthorization carries the data the provider needs to open a
// hosted checkout for a deposit.
type DepositAuthorization struct {
	UserID int64
	Phone  string
	Amount int64
}

// DepositIntent is the provider's answer to a deposit initiation. The
// reference keys the later confirmation callback.
type DepositIntent struct {
	Reference   string
	CheckoutURL string
}

// PayoutAuthorization captures data for a push payout to a verified phone.
type PayoutAuthorization struct {
	Phone  string
	Amount int64
}

// PayoutDecision captures the provider response for a payout.
type PayoutDecision struct {
	Reference string
	Status    string
}

// StaticProvider simulates a successful provider integration.
type StaticProvider struct{}

// InitiateDeposit approves the deposit with a synthetic checkout link.
func (StaticProvider) InitiateDeposit(_ context.Context, _ DepositAuthorization) (DepositIntent, error) {
	ref := uuid.NewString()
	return DepositIntent{
		Reference:   ref,
		CheckoutURL: fmt.Sprintf("https://checkout.example.test/pay/%s", ref),
	}, nil
}

// Payout approves the payout with a synthetic reference.
func (StaticProvider) Payout(_ context.Context, _ PayoutAuthorization) (PayoutDecision, error) {
	return PayoutDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
