package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/cache"
	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/messaging"
	"github.com/chopdirect/chopdirect/internal/notify"
	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	svc "github.com/chopdirect/chopdirect/internal/service/order"
	"github.com/chopdirect/chopdirect/internal/settings"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

type repoMock struct {
	place             func(ctx context.Context, order *entity.Order) error
	getByID           func(ctx context.Context, id string) (*entity.Order, error)
	listByUser        func(ctx context.Context, userID string) ([]*entity.Order, error)
	updateOrderStatus func(ctx context.Context, id string, from, to entity.OrderStatus) error
}

func (m *repoMock) Place(ctx context.Context, order *entity.Order) error {
	if m.place == nil {
		return nil
	}
	return m.place(ctx, order)
}

func (m *repoMock) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	if m.getByID == nil {
		return nil, repoorder.ErrNotFound
	}
	return m.getByID(ctx, id)
}

func (m *repoMock) ListByUser(ctx context.Context, userID string) ([]*entity.Order, error) {
	if m.listByUser == nil {
		return nil, nil
	}
	return m.listByUser(ctx, userID)
}

func (m *repoMock) UpdateOrderStatus(ctx context.Context, id string, from, to entity.OrderStatus) error {
	if m.updateOrderStatus == nil {
		return nil
	}
	return m.updateOrderStatus(ctx, id, from, to)
}

type catalogMock struct {
	restaurant *entity.Restaurant
	items      map[string]*entity.Item
}

func (m *catalogMock) GetByID(context.Context, string) (*entity.Restaurant, error) {
	return m.restaurant, nil
}

func (m *catalogMock) ItemsByIDs(context.Context, string, []string) (map[string]*entity.Item, error) {
	return m.items, nil
}

type settingsMock struct{}

func (settingsMock) Current(context.Context) (settings.Snapshot, error) {
	return settings.Snapshot{ExchangeRateMicros: 2_500_000, DeliveryFee: 500, ServiceCharge: 250}, nil
}

type missStore struct{}

func (missStore) Get(context.Context, string) ([]byte, error) { return nil, cache.ErrCacheMiss }
func (missStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (missStore) Delete(context.Context, string) error { return nil }

type noopRelay struct{}

func (noopRelay) PushOrderStatus(context.Context, notify.OrderStatusEvent) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, []byte, []byte) error     { return nil }
func (noopPublisher) Consume(context.Context, messaging.Handler) error { return nil }
func (noopPublisher) Topic() string                                     { return "orders.events" }

func newService(repo *repoMock, catalog *catalogMock) *svc.Service {
	cfg := config.Config{}
	cfg.Messaging.Enabled = false
	return svc.NewService(svc.Params{
		Repository: repo,
		Catalog:    catalog,
		Settings:   settingsMock{},
		Cache:      missStore{},
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  noopPublisher{},
		Relay:      noopRelay{},
	})
}

func activeCatalog() *catalogMock {
	return &catalogMock{
		restaurant: &entity.Restaurant{ID: "rest-1", IsActive: true},
		items: map[string]*entity.Item{
			"item-rice":    {ID: "item-rice", RestaurantID: "rest-1", Price: 1500, IsAvailable: true},
			"item-chicken": {ID: "item-chicken", RestaurantID: "rest-1", Price: 2500, IsAvailable: true},
			"item-offmenu": {ID: "item-offmenu", RestaurantID: "rest-1", Price: 900, IsAvailable: false},
		},
	}
}

func placeInput() dto.PlaceOrderInput {
	return dto.PlaceOrderInput{
		RestaurantID: "rest-1",
		Items: []dto.OrderLineInput{
			{ItemID: "item-rice", Quantity: 2},
			{ItemID: "item-chicken", Quantity: 1},
		},
		Name:    "Ada",
		Address: "12 Allen Avenue",
		Phone:   "+2348012345678",
	}
}

func TestPlaceComputesTotals(t *testing.T) {
	var placed *entity.Order
	repo := &repoMock{place: func(_ context.Context, order *entity.Order) error {
		placed = order
		return nil
	}}

	service := newService(repo, activeCatalog())
	order, err := service.Place(context.Background(), "user-1", placeInput())
	require.NoError(t, err)
	require.NotNil(t, placed)

	// 2x1500 + 1x2500 = 5500 subtotal; snapshot fees on top.
	require.Equal(t, int64(5500), order.Subtotal)
	require.Equal(t, int64(500), order.DeliveryFee)
	require.Equal(t, int64(250), order.ServiceCharge)
	require.Equal(t, order.Subtotal+order.DeliveryFee+order.ServiceCharge, order.Total)

	require.Equal(t, entity.OrderPendingConfirmation, order.OrderStatus)
	require.Equal(t, entity.PaymentPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	require.Equal(t, order.ID, order.Items[0].OrderID)

	var lineSum int64
	for _, item := range order.Items {
		lineSum += item.LineTotal()
	}
	require.Equal(t, order.Subtotal, lineSum)
}

func TestPlaceValidation(t *testing.T) {
	service := newService(&repoMock{}, activeCatalog())

	tests := []struct {
		name   string
		userID string
		mutate func(*dto.PlaceOrderInput)
		kind   errorbank.Kind
	}{
		{"missing identity", "", func(*dto.PlaceOrderInput) {}, errorbank.KindUnauthorized},
		{"no items", "user-1", func(in *dto.PlaceOrderInput) { in.Items = nil }, errorbank.KindBadRequest},
		{"no address", "user-1", func(in *dto.PlaceOrderInput) { in.Address = "" }, errorbank.KindBadRequest},
		{"zero quantity", "user-1", func(in *dto.PlaceOrderInput) { in.Items[0].Quantity = 0 }, errorbank.KindBadRequest},
		{"unknown item", "user-1", func(in *dto.PlaceOrderInput) { in.Items[0].ItemID = "item-ghost" }, errorbank.KindUnprocessableEntity},
		{"unavailable item", "user-1", func(in *dto.PlaceOrderInput) { in.Items[0].ItemID = "item-offmenu" }, errorbank.KindUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := placeInput()
			tt.mutate(&input)
			_, err := service.Place(context.Background(), tt.userID, input)
			require.Error(t, err)
			require.Equal(t, tt.kind, errorbank.From(err).Kind())
		})
	}
}

func TestPlaceInactiveRestaurant(t *testing.T) {
	catalog := activeCatalog()
	catalog.restaurant.IsActive = false
	service := newService(&repoMock{}, catalog)

	_, err := service.Place(context.Background(), "user-1", placeInput())
	require.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())
}

func TestGetScopesToOwner(t *testing.T) {
	stored := &entity.Order{ID: "order-1", UserID: "user-1"}
	repo := &repoMock{getByID: func(context.Context, string) (*entity.Order, error) {
		return stored, nil
	}}
	service := newService(repo, activeCatalog())

	order, err := service.Get(context.Background(), "user-1", "order-1")
	require.NoError(t, err)
	require.Equal(t, "order-1", order.ID)

	// Another user's probe reads as absence, not as forbidden.
	_, err = service.Get(context.Background(), "user-2", "order-1")
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestAdvanceStatusGuards(t *testing.T) {
	tests := []struct {
		name    string
		order   *entity.Order
		next    entity.OrderStatus
		wantErr errorbank.Kind
	}{
		{
			name:    "confirm requires payment",
			order:   &entity.Order{ID: "o1", OrderStatus: entity.OrderPendingConfirmation, PaymentStatus: entity.PaymentPending},
			next:    entity.OrderConfirmed,
			wantErr: errorbank.KindUnprocessableEntity,
		},
		{
			name:  "confirm paid order",
			order: &entity.Order{ID: "o1", OrderStatus: entity.OrderPendingConfirmation, PaymentStatus: entity.PaymentPaid},
			next:  entity.OrderConfirmed,
		},
		{
			name:    "no skipping",
			order:   &entity.Order{ID: "o1", OrderStatus: entity.OrderPendingConfirmation, PaymentStatus: entity.PaymentPaid},
			next:    entity.OrderOutForDelivery,
			wantErr: errorbank.KindUnprocessableEntity,
		},
		{
			name:  "cancel mid flight",
			order: &entity.Order{ID: "o1", OrderStatus: entity.OrderInPreparation, PaymentStatus: entity.PaymentPaid},
			next:  entity.OrderCancelled,
		},
		{
			name:    "terminal stays terminal",
			order:   &entity.Order{ID: "o1", OrderStatus: entity.OrderDelivered, PaymentStatus: entity.PaymentPaid},
			next:    entity.OrderCancelled,
			wantErr: errorbank.KindUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &repoMock{getByID: func(context.Context, string) (*entity.Order, error) {
				return tt.order, nil
			}}
			service := newService(repo, activeCatalog())

			updated, err := service.AdvanceStatus(context.Background(), "o1", tt.next)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantErr, errorbank.From(err).Kind())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.next, updated.OrderStatus)
		})
	}
}

func TestAdvanceStatusConcurrentChange(t *testing.T) {
	repo := &repoMock{
		getByID: func(context.Context, string) (*entity.Order, error) {
			return &entity.Order{ID: "o1", OrderStatus: entity.OrderConfirmed, PaymentStatus: entity.PaymentPaid}, nil
		},
		updateOrderStatus: func(context.Context, string, entity.OrderStatus, entity.OrderStatus) error {
			return repoorder.ErrStaleStatus
		},
	}
	service := newService(repo, activeCatalog())

	_, err := service.AdvanceStatus(context.Background(), "o1", entity.OrderInPreparation)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}
