package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// InternalSettings is the platform pricing row. The most recent row wins.
// ExchangeRateMicros is base-currency units per one provider-currency unit,
// scaled by 1e6; fees are minor units of the base currency.
type InternalSettings struct {
	bun.BaseModel `bun:"table:internal_settings"`

	ID                 string    `bun:"id,pk"`
	ExchangeRateMicros int64     `bun:"exchange_rate_micros,notnull"`
	DeliveryFee        int64     `bun:"delivery_fee,notnull"`
	ServiceCharge      int64     `bun:"service_charge,notnull"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
