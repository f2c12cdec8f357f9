package dto

// InitiatePaymentInput selects a payment method for an order.
type InitiatePaymentInput struct {
	PaymentMethod string `json:"payment_method"`
	MomoPhone     string `json:"momo_phone,omitempty"`
}

// InitiatePaymentResponse carries the provider handoff data the client needs
// to complete the charge.
type InitiatePaymentResponse struct {
	Provider    string `json:"provider"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	AccessCode  string `json:"access_code,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// VerifyPaymentInput is the poll-path request body.
type VerifyPaymentInput struct {
	TransactionRef string `json:"transactionRef"`
}

// VerifyPaymentResponse mirrors the poll-path contract: status is one of
// success, pending or failed when present.
type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AdvanceOrderStatusInput is the operator lifecycle transition payload.
type AdvanceOrderStatusInput struct {
	Status string `json:"status"`
}
