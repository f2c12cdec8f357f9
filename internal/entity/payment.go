package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Provider identifies which payment gateway issued a transaction reference.
type Provider string

const (
	ProviderPaystack Provider = "paystack"
	ProviderMomo     Provider = "momo"
)

// Valid reports whether the provider is one of the integrated gateways.
func (p Provider) Valid() bool {
	return p == ProviderPaystack || p == ProviderMomo
}

// PaymentEntry is one recorded payment attempt. The (provider,
// transaction_reference) pair is the idempotency key for confirmations.
// Amount is minor units of Currency; ExchangeRateMicros pins the base-to
// provider-currency rate applied at initiation so that verification compares
// against the same conversion regardless of later rate changes.
type PaymentEntry struct {
	bun.BaseModel `bun:"table:payments"`

	ID                 string        `bun:"id,pk"`
	OrderID            string        `bun:"order_id,nullzero"`
	Provider           Provider      `bun:"provider,notnull"`
	Reference          string        `bun:"transaction_reference,notnull"`
	Amount             int64         `bun:"amount,notnull"`
	Currency           string        `bun:"currency,notnull"`
	ExchangeRateMicros int64         `bun:"exchange_rate_micros,notnull"`
	Status             PaymentStatus `bun:"payment_status,notnull"`
	CreatedAt          time.Time     `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time     `bun:"updated_at,nullzero"`
}
