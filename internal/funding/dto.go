package funding

// DepositRequest captures user-provided data to fund a wallet.
type DepositRequest struct {
	Amount string `json:"amount"`
}

// DepositResponse represents the API response for a deposit initiation.
type DepositResponse struct {
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

// WithdrawalRequest captures withdrawal details to push funds out.
type WithdrawalRequest struct {
	Amount string `json:"amount"`
}

// WithdrawalResponse represents the API response for a withdrawal.
type WithdrawalResponse struct {
	EntryID           string `json:"entry_id"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
}

// CallbackRequest is the provider's confirmation webhook payload.
type CallbackRequest struct {
	Reference string `json:"tx_ref"`
	Status    string `json:"status"`
}
