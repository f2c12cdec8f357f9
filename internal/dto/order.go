package dto

import "time"

// OrderLineInput is one requested line of a new order.
type OrderLineInput struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// PlaceOrderInput is the payload accepted by the order placement endpoint.
type PlaceOrderInput struct {
	RestaurantID        string           `json:"restaurant_id"`
	Items               []OrderLineInput `json:"items"`
	Name                string           `json:"name"`
	Address             string           `json:"address"`
	Phone               string           `json:"phone"`
	SpecialInstructions string           `json:"special_instructions,omitempty"`
}

// OrderItemResponse is one priced line of an order.
type OrderItemResponse struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// OrderResponse represents an order as exposed via transport layers.
// Amounts are minor units of the platform base currency.
type OrderResponse struct {
	ID                  string              `json:"id"`
	RestaurantID        string              `json:"restaurant_id"`
	Name                string              `json:"name"`
	Address             string              `json:"address"`
	Phone               string              `json:"phone"`
	SpecialInstructions string              `json:"special_instructions,omitempty"`
	Subtotal            int64               `json:"subtotal"`
	DeliveryFee         int64               `json:"delivery_fee"`
	ServiceCharge       int64               `json:"service_charge"`
	Total               int64               `json:"total"`
	OrderStatus         string              `json:"order_status"`
	PaymentStatus       string              `json:"payment_status"`
	Items               []OrderItemResponse `json:"items,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}
