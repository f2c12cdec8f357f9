package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/cache"
	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/messaging"
	"github.com/chopdirect/chopdirect/internal/notify"
	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	reporestaurant "github.com/chopdirect/chopdirect/internal/repository/restaurant"
	"github.com/chopdirect/chopdirect/internal/settings"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/chopdirect/chopdirect/service/order")

// Repository is the order persistence contract the service needs.
type Repository interface {
	Place(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to entity.OrderStatus) error
}

// Catalog prices order lines against the menu.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*entity.Restaurant, error)
	ItemsByIDs(ctx context.Context, restaurantID string, ids []string) (map[string]*entity.Item, error)
}

// Service encapsulates business logic around orders.
type Service struct {
	repo      Repository
	catalog   Catalog
	settings  settings.Source
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	relay     notify.Relay
	messaging messagingConfig
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Catalog    Catalog
	Settings   settings.Source
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
	Relay      notify.Relay
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:      p.Repository,
		catalog:   p.Catalog,
		settings:  p.Settings,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		relay:     p.Relay,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// Place prices the requested lines against the catalog, applies the current
// fee snapshot and creates the order with its items atomically. The computed
// total is fixed at this point; nothing ever recomputes it.
func (s *Service) Place(ctx context.Context, userID string, input dto.PlaceOrderInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Place", trace.WithAttributes(attribute.String("restaurant.id", input.RestaurantID)))
	defer span.End()

	if userID == "" {
		return nil, errorbank.Unauthorized("user identity is required")
	}
	if input.RestaurantID == "" || len(input.Items) == 0 {
		return nil, errorbank.BadRequest("restaurant and at least one item are required")
	}
	if input.Address == "" || input.Phone == "" {
		return nil, errorbank.BadRequest("delivery address and phone are required")
	}

	restaurant, err := s.catalog.GetByID(ctx, input.RestaurantID)
	if err != nil {
		if errors.Is(err, reporestaurant.ErrNotFound) {
			return nil, errorbank.NotFound("restaurant not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog error")
		return nil, errorbank.Internal("failed to load restaurant", errorbank.WithCause(err))
	}
	if !restaurant.IsActive {
		return nil, errorbank.Unprocessable("restaurant is not accepting orders")
	}

	ids := make([]string, 0, len(input.Items))
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, errorbank.BadRequest("item quantity must be positive", errorbank.WithDetail("item_id", line.ItemID))
		}
		ids = append(ids, line.ItemID)
	}

	menu, err := s.catalog.ItemsByIDs(ctx, input.RestaurantID, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog error")
		return nil, errorbank.Internal("failed to load menu items", errorbank.WithCause(err))
	}

	snap, err := s.settings.Current(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings error")
		return nil, errorbank.Internal("failed to load pricing settings", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	orderID := uuid.NewString()

	var subtotal int64
	items := make([]*entity.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		item, ok := menu[line.ItemID]
		if !ok {
			return nil, errorbank.Unprocessable("item not on this menu", errorbank.WithDetail("item_id", line.ItemID))
		}
		if !item.IsAvailable {
			return nil, errorbank.Unprocessable("item is unavailable", errorbank.WithDetail("item_id", line.ItemID))
		}
		orderItem := &entity.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ItemID:    item.ID,
			Quantity:  line.Quantity,
			UnitPrice: item.Price,
		}
		subtotal += orderItem.LineTotal()
		items = append(items, orderItem)
	}

	order := &entity.Order{
		ID:                  orderID,
		UserID:              userID,
		RestaurantID:        input.RestaurantID,
		Name:                input.Name,
		Address:             input.Address,
		Phone:               input.Phone,
		SpecialInstructions: input.SpecialInstructions,
		Subtotal:            subtotal,
		DeliveryFee:         snap.DeliveryFee,
		ServiceCharge:       snap.ServiceCharge,
		Total:               subtotal + snap.DeliveryFee + snap.ServiceCharge,
		OrderStatus:         entity.OrderPendingConfirmation,
		PaymentStatus:       entity.PaymentPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		Items:               items,
	}

	if err := s.repo.Place(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", order.ID), zap.Error(err))
	}

	s.publishEvent(ctx, order.ID, OrderCreatedEvent{
		Type:         EventOrderCreated,
		ID:           order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		Total:        order.Total,
		CreatedAt:    order.CreatedAt,
	})

	return order, nil
}

// Get retrieves an order by id, consulting cache when available. Callers that
// pass a non-empty userID get owner scoping; operator paths pass "".
func (s *Service) Get(ctx context.Context, userID, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return s.scopeToOwner(order, userID)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repoorder.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}

	return s.scopeToOwner(order, userID)
}

// scopeToOwner hides other users' orders behind a 404 rather than a 403, so
// order ids cannot be probed.
func (s *Service) scopeToOwner(order *entity.Order, userID string) (*entity.Order, error) {
	if userID != "" && order.UserID != userID {
		return nil, errorbank.NotFound("order not found")
	}
	return order, nil
}

// ListByUser returns the caller's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListByUser")
	defer span.End()

	if userID == "" {
		return nil, errorbank.Unauthorized("user identity is required")
	}

	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// AdvanceStatus applies an operator lifecycle transition. Payment status is
// untouched here; only reconciliation moves it.
func (s *Service) AdvanceStatus(ctx context.Context, id string, next entity.OrderStatus) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.AdvanceStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.next", string(next)),
	))
	defer span.End()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repoorder.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if !order.OrderStatus.CanTransition(next) {
		return nil, errorbank.Unprocessable("invalid status transition",
			errorbank.WithDetail("from", string(order.OrderStatus)),
			errorbank.WithDetail("to", string(next)),
		)
	}
	if next == entity.OrderConfirmed && order.PaymentStatus != entity.PaymentPaid {
		return nil, errorbank.Unprocessable("order is not paid yet")
	}

	if err := s.repo.UpdateOrderStatus(ctx, id, order.OrderStatus, next); err != nil {
		if errors.Is(err, repoorder.ErrStaleStatus) {
			return nil, errorbank.Conflict("order status changed concurrently")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	order.OrderStatus = next
	order.UpdatedAt = time.Now().UTC()

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}

	if err := s.relay.PushOrderStatus(ctx, notify.OrderStatusEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    order.UpdatedAt,
	}); err != nil {
		s.logger.Warn("order status push failed", zap.String("id", id), zap.Error(err))
	}

	return order, nil
}

func (s *Service) publishEvent(ctx context.Context, orderID string, event any) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%s", orderID)), payload); err != nil {
		s.logger.Error("publish order event", zap.Error(err))
	}
}

func (s *Service) cacheKey(id string) string {
	return fmt.Sprintf("orders:%s", id)
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

// Event type discriminators published to the order topic.
const (
	EventOrderCreated = "order.created"
)

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RestaurantID string    `json:"restaurant_id"`
	Total        int64     `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}
