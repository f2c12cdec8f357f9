// Package provider defines the contract payment gateway adapters implement.
// Adapters own all provider-specific wire formats and unit conventions: every
// amount crossing this boundary is int64 minor units of the provider
// currency, whatever the gateway speaks natively. Adapters never touch the
// payment ledger; persisting and finalizing attempts belongs to the
// reconciliation service.
package provider

import (
	"context"
	"errors"
)

// ChargeStatus is the normalized provider-side status of a reference.
type ChargeStatus string

const (
	StatusPending   ChargeStatus = "pending"
	StatusSucceeded ChargeStatus = "succeeded"
	StatusFailed    ChargeStatus = "failed"
)

var (
	// ErrProviderUnavailable marks transient failures (network, 5xx,
	// timeout). Callers must not finalize any state on it.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidRequest marks a validation rejection by the provider.
	ErrInvalidRequest = errors.New("payment provider rejected request")

	// ErrNotFound means the provider does not know the reference.
	ErrNotFound = errors.New("transaction reference not found")
)

// InitiateRequest starts a charge. Amount is minor units of Currency.
type InitiateRequest struct {
	Amount      int64
	Currency    string
	PayerEmail  string
	PayerPhone  string
	CallbackURL string
}

// InitiateResult is the provider handoff for a started charge.
type InitiateResult struct {
	Reference   string
	CheckoutURL string
	AccessCode  string
}

// StatusResult is the provider's answer to a status query, normalized to
// minor units.
type StatusResult struct {
	Status   ChargeStatus
	Amount   int64
	Currency string
}

// Gateway is implemented once per external payment provider.
type Gateway interface {
	// Name identifies the gateway in ledger entries and routes.
	Name() string
	// Initiate starts a charge and returns the provider reference.
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	// QueryStatus polls the authoritative status for a reference.
	QueryStatus(ctx context.Context, reference string) (StatusResult, error)
}
