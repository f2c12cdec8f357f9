// Package notify pushes order-status changes to subscribed clients. Each
// order gets its own redis pub/sub channel; edge processes subscribe and
// translate events into user-facing toasts. When redis is disabled the relay
// degrades to a logging noop.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/config"
)

// OrderStatusEvent describes one observable order transition.
type OrderStatusEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	OrderStatus   string    `json:"order_status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Relay fans an order event out to its subscribers.
type Relay interface {
	PushOrderStatus(ctx context.Context, event OrderStatusEvent) error
}

// Module provides the relay to the Fx graph.
var Module = fx.Provide(NewRelay)

// NewRelay builds a redis-backed relay, or a noop one when caching (and thus
// redis) is disabled.
func NewRelay(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Relay, error) {
	if !cfg.Cache.Enabled || cfg.Cache.Driver != "redis" {
		logger.Info("realtime relay disabled; using noop relay")
		return noopRelay{logger: logger}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis relay: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return &redisRelay{client: client, logger: logger}, nil
}

type redisRelay struct {
	client *goredis.Client
	logger *zap.Logger
}

// Channel returns the pub/sub channel carrying one order's status events.
func Channel(orderID string) string {
	return "orders:" + orderID + ":status"
}

func (r *redisRelay) PushOrderStatus(ctx context.Context, event OrderStatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(event.OrderID), payload).Err(); err != nil {
		return err
	}
	r.logger.Debug("order status pushed",
		zap.String("order_id", event.OrderID),
		zap.String("order_status", event.OrderStatus),
		zap.String("payment_status", event.PaymentStatus),
	)
	return nil
}

type noopRelay struct {
	logger *zap.Logger
}

func (n noopRelay) PushOrderStatus(_ context.Context, event OrderStatusEvent) error {
	n.logger.Debug("order status event dropped (relay disabled)", zap.String("order_id", event.OrderID))
	return nil
}
