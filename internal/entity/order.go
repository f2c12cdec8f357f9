package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderStatus tracks the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderPendingConfirmation OrderStatus = "pending_confirmation"
	OrderConfirmed           OrderStatus = "confirmed"
	OrderInPreparation       OrderStatus = "in_preparation"
	OrderOutForDelivery      OrderStatus = "out_for_delivery"
	OrderDelivered           OrderStatus = "delivered"
	OrderCancelled           OrderStatus = "cancelled"
	OrderFailed              OrderStatus = "failed"
	OrderRefunded            OrderStatus = "refunded"
)

// orderFlow is the forward delivery path; side branches are handled in CanTransition.
var orderFlow = map[OrderStatus]OrderStatus{
	OrderPendingConfirmation: OrderConfirmed,
	OrderConfirmed:           OrderInPreparation,
	OrderInPreparation:       OrderOutForDelivery,
	OrderOutForDelivery:      OrderDelivered,
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderDelivered, OrderCancelled, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingConfirmation, OrderConfirmed, OrderInPreparation,
		OrderOutForDelivery, OrderDelivered, OrderCancelled, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle machine admits s -> next.
// Forward moves follow the delivery flow; cancelled, failed and refunded are
// reachable from any non-terminal state.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	switch next {
	case OrderCancelled, OrderFailed, OrderRefunded:
		return true
	}
	return orderFlow[s] == next
}

// PaymentStatus tracks the payment side of an order or ledger entry.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// CanTransition reports whether the payment machine admits s -> next.
// paid is sticky; failed -> pending covers a retry with a fresh ledger entry.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentFailed
	case PaymentFailed:
		return next == PaymentPending
	case PaymentPaid:
		return next == PaymentRefunded
	}
	return false
}

// Order represents a placed order. Monetary fields are minor units of the
// platform base currency; Total is fixed at creation and never recomputed.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                  string        `bun:"id,pk"`
	UserID              string        `bun:"user_id,notnull"`
	RestaurantID        string        `bun:"restaurant_id,notnull"`
	Name                string        `bun:"name"`
	Address             string        `bun:"address"`
	Phone               string        `bun:"phone"`
	SpecialInstructions string        `bun:"special_instructions,nullzero"`
	Subtotal            int64         `bun:"subtotal"`
	DeliveryFee         int64         `bun:"delivery_fee"`
	ServiceCharge       int64         `bun:"service_charge"`
	Total               int64         `bun:"total"`
	OrderStatus         OrderStatus   `bun:"order_status"`
	PaymentStatus       PaymentStatus `bun:"payment_status"`
	CreatedAt           time.Time     `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time     `bun:"updated_at,nullzero"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is one priced line of an order. UnitPrice is captured from the
// catalog at placement time and does not follow later catalog edits.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID        string `bun:"id,pk"`
	OrderID   string `bun:"order_id,notnull"`
	ItemID    string `bun:"item_id,notnull"`
	Quantity  int    `bun:"quantity,notnull"`
	UnitPrice int64  `bun:"unit_price,notnull"`
}

// LineTotal returns the extended price of the line.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}
