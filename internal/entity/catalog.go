package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Restaurant is a storefront tenant.
type Restaurant struct {
	bun.BaseModel `bun:"table:restaurants"`

	ID              string    `bun:"id,pk"`
	Slug            string    `bun:"slug,notnull"`
	Name            string    `bun:"name,notnull"`
	Address         string    `bun:"address"`
	PhoneNo         string    `bun:"phone_no"`
	IsActive        bool      `bun:"is_active"`
	PreparationTime int       `bun:"preparation_time"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero"`
}

// Item is a menu item. Price is minor units of the base currency.
type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID           string    `bun:"id,pk"`
	RestaurantID string    `bun:"restaurant_id,notnull"`
	Name         string    `bun:"name,notnull"`
	Price        int64     `bun:"price,notnull"`
	IsAvailable  bool      `bun:"is_available"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero"`
}
