package payment_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/messaging"
	"github.com/chopdirect/chopdirect/internal/notify"
	"github.com/chopdirect/chopdirect/internal/provider"
	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	repopayment "github.com/chopdirect/chopdirect/internal/repository/payment"
	"github.com/chopdirect/chopdirect/internal/settings"
	svc "github.com/chopdirect/chopdirect/internal/service/payment"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

type ledgerMock struct {
	createEntry     func(ctx context.Context, entry *entity.PaymentEntry) error
	findByReference func(ctx context.Context, prov entity.Provider, ref string) (*entity.PaymentEntry, error)
	findOpenByOrder func(ctx context.Context, orderID string) (*entity.PaymentEntry, error)
	transition      func(ctx context.Context, id string, from, to entity.PaymentStatus) error
}

func (m *ledgerMock) CreateEntry(ctx context.Context, entry *entity.PaymentEntry) error {
	if m.createEntry == nil {
		return nil
	}
	return m.createEntry(ctx, entry)
}

func (m *ledgerMock) FindByReference(ctx context.Context, prov entity.Provider, ref string) (*entity.PaymentEntry, error) {
	if m.findByReference == nil {
		return nil, repopayment.ErrNotFound
	}
	return m.findByReference(ctx, prov, ref)
}

func (m *ledgerMock) FindOpenByOrder(ctx context.Context, orderID string) (*entity.PaymentEntry, error) {
	if m.findOpenByOrder == nil {
		return nil, repopayment.ErrNotFound
	}
	return m.findOpenByOrder(ctx, orderID)
}

func (m *ledgerMock) Transition(ctx context.Context, id string, from, to entity.PaymentStatus) error {
	if m.transition == nil {
		return nil
	}
	return m.transition(ctx, id, from, to)
}

type ordersMock struct {
	getByID             func(ctx context.Context, id string) (*entity.Order, error)
	updatePaymentStatus func(ctx context.Context, id string, from, to entity.PaymentStatus) error
}

func (m *ordersMock) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	if m.getByID == nil {
		return nil, repoorder.ErrNotFound
	}
	return m.getByID(ctx, id)
}

func (m *ordersMock) UpdatePaymentStatus(ctx context.Context, id string, from, to entity.PaymentStatus) error {
	if m.updatePaymentStatus == nil {
		return nil
	}
	return m.updatePaymentStatus(ctx, id, from, to)
}

type gatewayMock struct {
	name        string
	initiate    func(ctx context.Context, req provider.InitiateRequest) (provider.InitiateResult, error)
	queryStatus func(ctx context.Context, reference string) (provider.StatusResult, error)
}

func (m *gatewayMock) Name() string { return m.name }

func (m *gatewayMock) Initiate(ctx context.Context, req provider.InitiateRequest) (provider.InitiateResult, error) {
	return m.initiate(ctx, req)
}

func (m *gatewayMock) QueryStatus(ctx context.Context, reference string) (provider.StatusResult, error) {
	return m.queryStatus(ctx, reference)
}

type settingsMock struct {
	snapshot settings.Snapshot
}

func (m *settingsMock) Current(context.Context) (settings.Snapshot, error) {
	return m.snapshot, nil
}

type cacheMock struct {
	deleted []string
}

func (m *cacheMock) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (m *cacheMock) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (m *cacheMock) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type relayMock struct {
	mu     sync.Mutex
	events []notify.OrderStatusEvent
}

func (m *relayMock) PushOrderStatus(_ context.Context, event notify.OrderStatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type publisherMock struct {
	mu       sync.Mutex
	messages [][]byte
}

func (m *publisherMock) Publish(_ context.Context, _ []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, value)
	return nil
}

func (m *publisherMock) Consume(context.Context, messaging.Handler) error {
	return nil
}

func (m *publisherMock) Topic() string { return "orders.events" }

type fixture struct {
	ledger    *ledgerMock
	orders    *ordersMock
	paystack  *gatewayMock
	momo      *gatewayMock
	cache     *cacheMock
	relay     *relayMock
	publisher *publisherMock
	svc       *svc.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:    &ledgerMock{},
		orders:    &ordersMock{},
		paystack:  &gatewayMock{name: "paystack"},
		momo:      &gatewayMock{name: "momo"},
		cache:     &cacheMock{},
		relay:     &relayMock{},
		publisher: &publisherMock{},
	}

	cfg := config.Config{}
	cfg.Payments.CallbackBaseURL = "https://api.chopdirect.test"
	cfg.Payments.CardCurrency = "NGN"
	cfg.Payments.MomoCurrency = "XAF"
	cfg.Payments.Paystack.MinorPerMajor = 100
	cfg.Payments.Momo.MinorPerMajor = 100
	cfg.Messaging.Enabled = true
	cfg.Messaging.Kafka.Topic = "orders.events"

	f.svc = svc.NewService(svc.Params{
		Ledger:    f.ledger,
		Orders:    f.orders,
		Gateways:  []provider.Gateway{f.paystack, f.momo},
		Settings:  &settingsMock{snapshot: settings.Snapshot{ExchangeRateMicros: 2_500_000, DeliveryFee: 500, ServiceCharge: 250}},
		Cache:     f.cache,
		Relay:     f.relay,
		Publisher: f.publisher,
		Config:    cfg,
		Logger:    zap.NewNop(),
	})
	return f
}

// 5000 base units at rate 2.5 converts to 200000 provider minor units.
func testOrder() *entity.Order {
	return &entity.Order{
		ID:            "order-1",
		UserID:        "user-1",
		Total:         5000,
		OrderStatus:   entity.OrderPendingConfirmation,
		PaymentStatus: entity.PaymentPending,
	}
}

func pendingEntry() *entity.PaymentEntry {
	return &entity.PaymentEntry{
		ID:                 "entry-1",
		OrderID:            "order-1",
		Provider:           entity.ProviderPaystack,
		Reference:          "REF-1",
		Amount:             200_000,
		Currency:           "NGN",
		ExchangeRateMicros: 2_500_000,
		Status:             entity.PaymentPending,
	}
}

func TestConfirmWebhookSuccessFinalizes(t *testing.T) {
	f := newFixture(t)

	var transitions []string
	f.ledger.findByReference = func(_ context.Context, prov entity.Provider, ref string) (*entity.PaymentEntry, error) {
		require.Equal(t, entity.ProviderPaystack, prov)
		require.Equal(t, "REF-1", ref)
		return pendingEntry(), nil
	}
	f.ledger.transition = func(_ context.Context, id string, from, to entity.PaymentStatus) error {
		transitions = append(transitions, string(from)+"->"+string(to))
		return nil
	}
	f.orders.getByID = func(_ context.Context, id string) (*entity.Order, error) {
		return testOrder(), nil
	}

	var orderUpdates []string
	f.orders.updatePaymentStatus = func(_ context.Context, id string, from, to entity.PaymentStatus) error {
		orderUpdates = append(orderUpdates, string(from)+"->"+string(to))
		return nil
	}

	result, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 200_000, Currency: "NGN"},
	})
	require.NoError(t, err)
	require.Equal(t, svc.OutcomePaid, result.Outcome)
	require.Equal(t, []string{"pending->paid"}, transitions)
	require.Equal(t, []string{"pending->paid"}, orderUpdates)
	require.Contains(t, f.cache.deleted, "orders:order-1")

	require.Len(t, f.publisher.messages, 1)
	var event svc.SettledEvent
	require.NoError(t, json.Unmarshal(f.publisher.messages[0], &event))
	require.Equal(t, svc.EventPaymentSettled, event.Type)
	require.Equal(t, "order-1", event.OrderID)
	require.Equal(t, int64(200_000), event.Amount)

	require.Len(t, f.relay.events, 1)
	require.Equal(t, "paid", f.relay.events[0].PaymentStatus)
}

func TestConfirmReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)

	entry := pendingEntry()
	entry.Status = entity.PaymentPaid
	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return entry, nil
	}
	order := testOrder()
	order.PaymentStatus = entity.PaymentPaid
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return order, nil
	}
	f.ledger.transition = func(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
		t.Fatal("no transition expected on replay")
		return nil
	}

	result, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 200_000, Currency: "NGN"},
	})
	require.NoError(t, err)
	require.Equal(t, svc.OutcomeAlreadyPaid, result.Outcome)
	require.Empty(t, f.publisher.messages)
	require.Empty(t, f.relay.events)
}

func TestConfirmAmountMismatchLeavesPending(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}
	f.ledger.transition = func(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
		t.Fatal("mismatched amount must not transition the entry")
		return nil
	}

	_, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 199_900, Currency: "NGN"},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, svc.ErrAmountMismatch)
	require.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())
	require.Empty(t, f.publisher.messages)
}

func TestConfirmCurrencyMismatchRejected(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}

	_, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 200_000, Currency: "USD"},
	})
	require.ErrorIs(t, err, svc.ErrAmountMismatch)
}

func TestConfirmLostRaceReportsAlreadyPaid(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}
	f.ledger.transition = func(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
		return repopayment.ErrStaleTransition
	}

	result, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 200_000, Currency: "NGN"},
	})
	require.NoError(t, err)
	require.Equal(t, svc.OutcomeAlreadyPaid, result.Outcome)
	require.Empty(t, f.publisher.messages, "the loser of the race must not emit events")
}

func TestConfirmPendingMutatesNothing(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}
	f.paystack.queryStatus = func(_ context.Context, ref string) (provider.StatusResult, error) {
		return provider.StatusResult{Status: provider.StatusPending}, nil
	}
	f.ledger.transition = func(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
		t.Fatal("pending must not transition anything")
		return nil
	}

	result, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourcePoll,
		CallerID:  "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, svc.OutcomePending, result.Outcome)
}

func TestConfirmFailureMarksBothSides(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}
	f.paystack.queryStatus = func(context.Context, string) (provider.StatusResult, error) {
		return provider.StatusResult{Status: provider.StatusFailed}, nil
	}

	var entryTo, orderTo entity.PaymentStatus
	f.ledger.transition = func(_ context.Context, _ string, _, to entity.PaymentStatus) error {
		entryTo = to
		return nil
	}
	f.orders.updatePaymentStatus = func(_ context.Context, _ string, _, to entity.PaymentStatus) error {
		orderTo = to
		return nil
	}

	result, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourcePoll,
		CallerID:  "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, svc.OutcomeFailed, result.Outcome)
	require.Equal(t, entity.PaymentFailed, entryTo)
	require.Equal(t, entity.PaymentFailed, orderTo)
	require.Empty(t, f.publisher.messages)
}

func TestConfirmPollOwnerGate(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(context.Context, entity.Provider, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}

	_, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-1",
		Source:    svc.SourcePoll,
		CallerID:  "someone-else",
	})
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestConfirmUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), svc.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: "REF-UNKNOWN",
		Source:    svc.SourceWebhook,
		Pushed:    &provider.StatusResult{Status: provider.StatusSucceeded, Amount: 1, Currency: "NGN"},
	})
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestConfirmPollMapsOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		status      provider.ChargeStatus
		wantSuccess bool
		wantStatus  string
	}{
		{"settled", provider.StatusSucceeded, true, "success"},
		{"still pending", provider.StatusPending, false, "pending"},
		{"failed", provider.StatusFailed, false, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ledger.findByReference = func(_ context.Context, prov entity.Provider, _ string) (*entity.PaymentEntry, error) {
				if prov != entity.ProviderPaystack {
					return nil, repopayment.ErrNotFound
				}
				return pendingEntry(), nil
			}
			f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
				return testOrder(), nil
			}
			f.paystack.queryStatus = func(context.Context, string) (provider.StatusResult, error) {
				return provider.StatusResult{Status: tt.status, Amount: 200_000, Currency: "NGN"}, nil
			}

			res, err := f.svc.ConfirmPoll(context.Background(), "user-1", "order-1", "REF-1")
			require.NoError(t, err)
			require.Equal(t, tt.wantSuccess, res.Success)
			require.Equal(t, tt.wantStatus, res.Status)
		})
	}
}

func TestConfirmPollRejectsForeignOrder(t *testing.T) {
	f := newFixture(t)

	f.ledger.findByReference = func(_ context.Context, prov entity.Provider, _ string) (*entity.PaymentEntry, error) {
		if prov != entity.ProviderPaystack {
			return nil, repopayment.ErrNotFound
		}
		return pendingEntry(), nil
	}

	_, err := f.svc.ConfirmPoll(context.Background(), "user-1", "another-order", "REF-1")
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestInitiateCardPinsRateAndAmount(t *testing.T) {
	f := newFixture(t)

	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}

	var initiated provider.InitiateRequest
	f.paystack.initiate = func(_ context.Context, req provider.InitiateRequest) (provider.InitiateResult, error) {
		initiated = req
		return provider.InitiateResult{Reference: "REF-NEW", CheckoutURL: "https://checkout.test/REF-NEW"}, nil
	}

	var created *entity.PaymentEntry
	f.ledger.createEntry = func(_ context.Context, entry *entity.PaymentEntry) error {
		created = entry
		return nil
	}

	res, err := f.svc.Initiate(context.Background(), "user-1", "user@example.com", "order-1", dto.InitiatePaymentInput{
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	require.Equal(t, int64(200_000), initiated.Amount)
	require.Equal(t, "NGN", initiated.Currency)
	require.Equal(t, "user@example.com", initiated.PayerEmail)
	require.Equal(t, "https://api.chopdirect.test/webhooks/paystack", initiated.CallbackURL)

	require.NotNil(t, created)
	require.Equal(t, int64(2_500_000), created.ExchangeRateMicros)
	require.Equal(t, int64(200_000), created.Amount)
	require.Equal(t, entity.PaymentPending, created.Status)
	require.Equal(t, entity.ProviderPaystack, created.Provider)
	require.Equal(t, "REF-NEW", created.Reference)

	require.Equal(t, "paystack", res.Provider)
	require.Equal(t, "https://checkout.test/REF-NEW", res.CheckoutURL)
	require.Equal(t, int64(200_000), res.Amount)
}

func TestInitiateRejectsOpenAttempt(t *testing.T) {
	f := newFixture(t)

	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}
	f.ledger.findOpenByOrder = func(context.Context, string) (*entity.PaymentEntry, error) {
		return pendingEntry(), nil
	}

	_, err := f.svc.Initiate(context.Background(), "user-1", "user@example.com", "order-1", dto.InitiatePaymentInput{
		PaymentMethod: "card",
	})
	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
		return testOrder(), nil
	}

	t.Run("unsupported method", func(t *testing.T) {
		_, err := f.svc.Initiate(context.Background(), "user-1", "", "order-1", dto.InitiatePaymentInput{PaymentMethod: "bitcoin"})
		require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	})

	t.Run("momo requires phone", func(t *testing.T) {
		_, err := f.svc.Initiate(context.Background(), "user-1", "", "order-1", dto.InitiatePaymentInput{PaymentMethod: "momo"})
		require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	})

	t.Run("foreign order looks absent", func(t *testing.T) {
		_, err := f.svc.Initiate(context.Background(), "intruder", "", "order-1", dto.InitiatePaymentInput{PaymentMethod: "card"})
		require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
	})

	t.Run("already paid order", func(t *testing.T) {
		paid := testOrder()
		paid.PaymentStatus = entity.PaymentPaid
		f.orders.getByID = func(context.Context, string) (*entity.Order, error) {
			return paid, nil
		}
		_, err := f.svc.Initiate(context.Background(), "user-1", "", "order-1", dto.InitiatePaymentInput{PaymentMethod: "card"})
		require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
	})
}
