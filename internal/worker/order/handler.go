// Package order hosts the background consumer for order lifecycle events.
// All events share one topic and are dispatched on their type discriminator.
package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/messaging"
	"github.com/chopdirect/chopdirect/internal/notify"
	ordersvc "github.com/chopdirect/chopdirect/internal/service/order"
	paymentsvc "github.com/chopdirect/chopdirect/internal/service/payment"
	"github.com/chopdirect/chopdirect/internal/worker"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var workerTracer = otel.Tracer("github.com/chopdirect/chopdirect/worker/order")

// Module registers the order events worker handler.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// envelope is the minimal decode used to route an event to its handler.
type envelope struct {
	Type string `json:"type"`
}

// NewEventsHandler builds the consumer for the shared order events topic.
// Settled payments are fanned out through the notify relay and logged for
// the audit trail; confirming an order stays a restaurant-operator action.
func NewEventsHandler(logger *zap.Logger, cfg config.Config, orders *ordersvc.Service, relay notify.Relay) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Error("failed to decode event envelope", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			// Malformed payloads never become parseable on redelivery.
			return nil
		}
		span.SetAttributes(attribute.String("event.type", env.Type))

		switch env.Type {
		case paymentsvc.EventPaymentSettled:
			return handleSettled(ctx, logger, orders, relay, msg.Value)
		case ordersvc.EventOrderCreated:
			return handleCreated(logger, msg.Value)
		default:
			logger.Debug("ignoring event", zap.String("type", env.Type))
			return nil
		}
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

func handleSettled(ctx context.Context, logger *zap.Logger, orders *ordersvc.Service, relay notify.Relay, payload []byte) error {
	var event paymentsvc.SettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Error("failed to decode payment settled", zap.Error(err))
		return nil
	}

	// The settlement only unblocks fulfillment. Confirming the order is the
	// operator's call, so the lifecycle status is read, never written, here.
	order, err := orders.Get(ctx, event.UserID, event.OrderID)
	if err != nil {
		if errorbank.From(err).Kind() == errorbank.KindNotFound {
			logger.Warn("settled payment references unknown order",
				zap.String("order_id", event.OrderID), zap.Error(err))
			return nil
		}
		logger.Error("failed to load order for settlement fan-out",
			zap.String("order_id", event.OrderID), zap.Error(err))
		return err
	}

	if err := relay.PushOrderStatus(ctx, notify.OrderStatusEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    event.SettledAt,
	}); err != nil {
		logger.Warn("settlement fan-out failed", zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.Info("payment settled",
		zap.String("order_id", event.OrderID),
		zap.String("provider", event.Provider),
		zap.String("reference", event.Reference),
		zap.Int64("amount", event.Amount),
		zap.String("currency", event.Currency),
	)
	return nil
}

func handleCreated(logger *zap.Logger, payload []byte) error {
	var event ordersvc.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Error("failed to decode order created", zap.Error(err))
		return nil
	}

	logger.Info("order created",
		zap.String("order_id", event.ID),
		zap.String("restaurant_id", event.RestaurantID),
		zap.Int64("total", event.Total),
	)
	return nil
}
