// Package payment implements payment initiation and the reconciliation
// engine. Webhook and poll confirmations converge on Confirm, which is the
// only code path allowed to finalize a payment attempt.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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
	"github.com/chopdirect/chopdirect/internal/provider"
	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	repopayment "github.com/chopdirect/chopdirect/internal/repository/payment"
	"github.com/chopdirect/chopdirect/internal/settings"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/chopdirect/chopdirect/service/payment")

// Ledger is the payment-attempt persistence contract.
type Ledger interface {
	CreateEntry(ctx context.Context, entry *entity.PaymentEntry) error
	FindByReference(ctx context.Context, provider entity.Provider, reference string) (*entity.PaymentEntry, error)
	FindOpenByOrder(ctx context.Context, orderID string) (*entity.PaymentEntry, error)
	Transition(ctx context.Context, id string, from, to entity.PaymentStatus) error
}

// Orders is the slice of order persistence reconciliation needs.
type Orders interface {
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, from, to entity.PaymentStatus) error
}

// Source distinguishes the two confirmation entry points.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)

// Outcome summarizes what a confirmation did.
type Outcome string

const (
	OutcomePaid        Outcome = "paid"         // this call finalized the payment
	OutcomeAlreadyPaid Outcome = "already_paid" // idempotent no-op
	OutcomePending     Outcome = "pending"      // provider has not settled yet
	OutcomeFailed      Outcome = "failed"       // provider reported failure
)

// ConfirmInput is one inbound confirmation signal.
type ConfirmInput struct {
	Provider  entity.Provider
	Reference string
	Source    Source
	// CallerID is the authenticated user on the poll path; empty on webhooks.
	CallerID string
	// Pushed carries a signature-authenticated webhook payload. When nil the
	// provider is queried for the authoritative status instead.
	Pushed *provider.StatusResult
}

// ConfirmResult reports the reconciliation outcome.
type ConfirmResult struct {
	Outcome Outcome
	OrderID string
}

// Service wires gateways, ledger and orders into the reconciliation flow.
type Service struct {
	ledger    Ledger
	orders    Orders
	gateways  map[entity.Provider]provider.Gateway
	settings  settings.Source
	cache     cache.Store
	relay     notify.Relay
	publisher messaging.Client
	logger    *zap.Logger
	payments  config.Payments
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Ledger    Ledger
	Orders    Orders
	Gateways  []provider.Gateway `group:"payment.gateways"`
	Settings  settings.Source
	Cache     cache.Store
	Relay     notify.Relay
	Publisher messaging.Client
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	gateways := make(map[entity.Provider]provider.Gateway, len(p.Gateways))
	for _, gw := range p.Gateways {
		gateways[entity.Provider(gw.Name())] = gw
	}
	return &Service{
		ledger:    p.Ledger,
		orders:    p.Orders,
		gateways:  gateways,
		settings:  p.Settings,
		cache:     p.Cache,
		relay:     p.Relay,
		publisher: p.Publisher,
		logger:    p.Logger,
		payments:  p.Config.Payments,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// Initiate starts a charge for an order and records the pending ledger entry.
// The exchange rate applied here is pinned on the entry so verification
// always compares against the same conversion.
func (s *Service) Initiate(ctx context.Context, userID, email, orderID string, input dto.InitiatePaymentInput) (*dto.InitiatePaymentResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.Initiate", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.method", input.PaymentMethod),
	))
	defer span.End()

	prov, err := providerForMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if prov == entity.ProviderMomo && input.MomoPhone == "" {
		return nil, errorbank.BadRequest("momo_phone is required for mobile money")
	}

	gw, ok := s.gateways[prov]
	if !ok {
		return nil, errorbank.Internal("payment gateway not configured", errorbank.WithDetail("provider", string(prov)))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repoorder.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if order.UserID != userID {
		return nil, errorbank.NotFound("order not found")
	}
	if order.PaymentStatus == entity.PaymentPaid {
		return nil, errorbank.Conflict("order is already paid")
	}
	if order.OrderStatus.Terminal() {
		return nil, errorbank.Unprocessable("order is closed")
	}

	if open, err := s.ledger.FindOpenByOrder(ctx, orderID); err == nil {
		if open.Status == entity.PaymentPaid {
			return nil, errorbank.Conflict("order is already paid")
		}
		return nil, errorbank.Conflict("a payment attempt is already in progress",
			errorbank.WithDetail("reference", open.Reference))
	} else if !errors.Is(err, repopayment.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger error")
		return nil, errorbank.Internal("failed to check payment attempts", errorbank.WithCause(err))
	}

	snap, err := s.settings.Current(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings error")
		return nil, errorbank.Internal("failed to load exchange rate", errorbank.WithCause(err))
	}

	currency, minorPerMajor := s.providerCurrency(prov)
	amount, err := entity.ConvertToProviderMinor(order.Total, snap.ExchangeRateMicros, minorPerMajor)
	if err != nil {
		return nil, errorbank.Unprocessable("order total is not chargeable at the current rate", errorbank.WithCause(err))
	}

	result, err := gw.Initiate(ctx, provider.InitiateRequest{
		Amount:      amount,
		Currency:    currency,
		PayerEmail:  email,
		PayerPhone:  input.MomoPhone,
		CallbackURL: s.payments.CallbackBaseURL + "/webhooks/" + gw.Name(),
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}

	now := time.Now().UTC()
	entry := &entity.PaymentEntry{
		ID:                 uuid.NewString(),
		OrderID:            order.ID,
		Provider:           prov,
		Reference:          result.Reference,
		Amount:             amount,
		Currency:           currency,
		ExchangeRateMicros: snap.ExchangeRateMicros,
		Status:             entity.PaymentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.ledger.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, repopayment.ErrDuplicateReference) {
			return nil, errorbank.Conflict("transaction reference already recorded",
				errorbank.WithDetail("reference", result.Reference))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger error")
		return nil, errorbank.Internal("failed to record payment attempt", errorbank.WithCause(err))
	}

	// A retry after a failed attempt reopens the order's payment side.
	if order.PaymentStatus == entity.PaymentFailed {
		if err := s.orders.UpdatePaymentStatus(ctx, order.ID, entity.PaymentFailed, entity.PaymentPending); err != nil &&
			!errors.Is(err, repoorder.ErrStaleStatus) {
			s.logger.Warn("failed to reopen order payment status", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	return &dto.InitiatePaymentResponse{
		Provider:    gw.Name(),
		Reference:   result.Reference,
		CheckoutURL: result.CheckoutURL,
		AccessCode:  result.AccessCode,
		Amount:      amount,
		Currency:    currency,
	}, nil
}

// Confirm validates one confirmation signal against the ledger and order and
// finalizes the payment exactly once. Both entry points land here; the
// compare-and-set ledger transition is what makes racing confirmations safe.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (ConfirmResult, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.Confirm", trace.WithAttributes(
		attribute.String("payment.provider", string(input.Provider)),
		attribute.String("payment.reference", input.Reference),
		attribute.String("payment.source", string(input.Source)),
	))
	defer span.End()

	if input.Reference == "" {
		return ConfirmResult{}, errorbank.BadRequest("transaction reference is required")
	}

	// Step 1: resolve the ledger entry by its idempotency key.
	entry, err := s.ledger.FindByReference(ctx, input.Provider, input.Reference)
	if err != nil {
		if errors.Is(err, repopayment.ErrNotFound) {
			return ConfirmResult{}, errorbank.NotFound("payment not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger error")
		return ConfirmResult{}, errorbank.Internal("failed to load payment", errorbank.WithCause(err))
	}

	// Step 2: resolve the order; the poll path must be its owner.
	order, err := s.orders.GetByID(ctx, entry.OrderID)
	if err != nil {
		if errors.Is(err, repoorder.ErrNotFound) {
			return ConfirmResult{}, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return ConfirmResult{}, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if input.Source == SourcePoll && order.UserID != input.CallerID {
		return ConfirmResult{}, errorbank.NotFound("order not found")
	}

	// Step 3: already finalized earlier — idempotent no-op, not an error.
	if entry.Status == entity.PaymentPaid || order.PaymentStatus == entity.PaymentPaid {
		return ConfirmResult{Outcome: OutcomeAlreadyPaid, OrderID: order.ID}, nil
	}

	// Step 4: authoritative status. Only a signature-authenticated webhook
	// payload may be trusted; everything else queries the provider.
	status := input.Pushed
	if status == nil {
		gw, ok := s.gateways[input.Provider]
		if !ok {
			return ConfirmResult{}, errorbank.Internal("payment gateway not configured", errorbank.WithDetail("provider", string(input.Provider)))
		}
		queried, err := gw.QueryStatus(ctx, input.Reference)
		if err != nil {
			return ConfirmResult{}, mapGatewayError(err)
		}
		status = &queried
	}

	switch status.Status {
	case provider.StatusPending:
		// Not settled yet; nothing to mutate.
		return ConfirmResult{Outcome: OutcomePending, OrderID: order.ID}, nil

	case provider.StatusFailed:
		// Step 5: provider-reported failure is a business outcome, not an
		// error. A lost CAS means another path already finalized.
		if err := s.ledger.Transition(ctx, entry.ID, entity.PaymentPending, entity.PaymentFailed); err != nil {
			if errors.Is(err, repopayment.ErrStaleTransition) {
				return s.afterStaleTransition(ctx, input.Provider, input.Reference, order.ID)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger error")
			return ConfirmResult{}, errorbank.Internal("failed to record payment failure", errorbank.WithCause(err))
		}
		if err := s.orders.UpdatePaymentStatus(ctx, order.ID, entity.PaymentPending, entity.PaymentFailed); err != nil &&
			!errors.Is(err, repoorder.ErrStaleStatus) {
			s.logger.Error("failed to mark order payment failed", zap.String("order_id", order.ID), zap.Error(err))
		}
		s.invalidateOrderCache(ctx, order.ID)
		s.notifyStatus(ctx, order, entity.PaymentFailed)
		return ConfirmResult{Outcome: OutcomeFailed, OrderID: order.ID}, nil

	case provider.StatusSucceeded:
		// Step 6: the expected amount is recomputed from our own stored
		// total and the rate pinned at initiation; the provider-reported
		// value is never the basis for finalization.
		minorPerMajor := s.minorPerMajor(input.Provider)
		expected, err := entity.ConvertToProviderMinor(order.Total, entry.ExchangeRateMicros, minorPerMajor)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "conversion error")
			return ConfirmResult{}, errorbank.Internal("failed to derive expected amount", errorbank.WithCause(err))
		}
		if status.Amount != expected || !currencyMatches(status.Currency, entry.Currency) {
			s.logger.Error("payment amount mismatch",
				zap.String("order_id", order.ID),
				zap.String("reference", input.Reference),
				zap.Int64("expected_amount", expected),
				zap.Int64("reported_amount", status.Amount),
				zap.String("expected_currency", entry.Currency),
				zap.String("reported_currency", status.Currency),
			)
			span.SetStatus(codes.Error, "amount mismatch")
			return ConfirmResult{}, errorbank.Unprocessable("payment amount does not match order amount",
				errorbank.WithCause(ErrAmountMismatch),
				errorbank.WithDetail("expected", expected),
				errorbank.WithDetail("received", status.Amount),
			)
		}

		// Step 7: the compare-and-set is the exactly-once gate. Losing it
		// means the other confirmation path already finalized.
		if err := s.ledger.Transition(ctx, entry.ID, entity.PaymentPending, entity.PaymentPaid); err != nil {
			if errors.Is(err, repopayment.ErrStaleTransition) {
				return ConfirmResult{Outcome: OutcomeAlreadyPaid, OrderID: order.ID}, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger error")
			return ConfirmResult{}, errorbank.Internal("failed to finalize payment", errorbank.WithCause(err))
		}

		// Step 8: unblock fulfillment; the lifecycle status itself stays put.
		if err := s.orders.UpdatePaymentStatus(ctx, order.ID, entity.PaymentPending, entity.PaymentPaid); err != nil &&
			!errors.Is(err, repoorder.ErrStaleStatus) {
			s.logger.Error("ledger paid but order update failed", zap.String("order_id", order.ID), zap.Error(err))
		}
		s.invalidateOrderCache(ctx, order.ID)
		s.notifyStatus(ctx, order, entity.PaymentPaid)
		s.publishSettled(ctx, order, entry)
		return ConfirmResult{Outcome: OutcomePaid, OrderID: order.ID}, nil
	}

	return ConfirmResult{}, errorbank.Internal("unknown provider status", errorbank.WithDetail("status", string(status.Status)))
}

// ConfirmPoll is the poll-path entry point. The client only knows its
// transaction reference, so the provider is resolved from the ledger before
// converging on Confirm. The entry must belong to the polled order.
func (s *Service) ConfirmPoll(ctx context.Context, callerID, orderID, reference string) (*dto.VerifyPaymentResponse, error) {
	if reference == "" {
		return nil, errorbank.BadRequest("transactionRef is required")
	}

	var entry *entity.PaymentEntry
	for _, prov := range []entity.Provider{entity.ProviderPaystack, entity.ProviderMomo} {
		found, err := s.ledger.FindByReference(ctx, prov, reference)
		if err == nil {
			entry = found
			break
		}
		if !errors.Is(err, repopayment.ErrNotFound) {
			return nil, errorbank.Internal("failed to load payment", errorbank.WithCause(err))
		}
	}
	if entry == nil || entry.OrderID != orderID {
		return nil, errorbank.NotFound("payment not found")
	}

	result, err := s.Confirm(ctx, ConfirmInput{
		Provider:  entry.Provider,
		Reference: reference,
		Source:    SourcePoll,
		CallerID:  callerID,
	})
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case OutcomePaid, OutcomeAlreadyPaid:
		return &dto.VerifyPaymentResponse{Success: true, Status: "success"}, nil
	case OutcomeFailed:
		return &dto.VerifyPaymentResponse{Success: false, Status: "failed", Error: "payment failed"}, nil
	default:
		return &dto.VerifyPaymentResponse{Success: false, Status: "pending"}, nil
	}
}

// afterStaleTransition resolves what a lost failure-CAS means: if the other
// path recorded paid, report the idempotent success; otherwise it was a
// duplicate failure signal.
func (s *Service) afterStaleTransition(ctx context.Context, prov entity.Provider, reference, orderID string) (ConfirmResult, error) {
	entry, err := s.ledger.FindByReference(ctx, prov, reference)
	if err == nil && entry.Status == entity.PaymentPaid {
		return ConfirmResult{Outcome: OutcomeAlreadyPaid, OrderID: orderID}, nil
	}
	return ConfirmResult{Outcome: OutcomeFailed, OrderID: orderID}, nil
}

// ErrAmountMismatch marks a reported amount that differs from the
// system-computed charge. The entry stays pending for manual review.
var ErrAmountMismatch = errors.New("payment amount mismatch")

func currencyMatches(reported, charged string) bool {
	if reported == "" {
		return true
	}
	return strings.EqualFold(reported, charged)
}

func providerForMethod(method string) (entity.Provider, error) {
	switch method {
	case "card", "paystack":
		return entity.ProviderPaystack, nil
	case "momo", "mobile_money":
		return entity.ProviderMomo, nil
	default:
		return "", errorbank.BadRequest("unsupported payment method", errorbank.WithDetail("payment_method", method))
	}
}

func (s *Service) providerCurrency(prov entity.Provider) (string, int64) {
	switch prov {
	case entity.ProviderMomo:
		currency := s.payments.MomoCurrency
		if s.payments.Momo.Sandbox {
			// The sandbox collection API only settles EUR.
			currency = "EUR"
		}
		return currency, s.payments.Momo.MinorPerMajor
	default:
		return s.payments.CardCurrency, s.payments.Paystack.MinorPerMajor
	}
}

func (s *Service) minorPerMajor(prov entity.Provider) int64 {
	switch prov {
	case entity.ProviderMomo:
		return s.payments.Momo.MinorPerMajor
	default:
		return s.payments.Paystack.MinorPerMajor
	}
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return errorbank.NotFound("transaction reference unknown to provider", errorbank.WithCause(err))
	case errors.Is(err, provider.ErrInvalidRequest):
		return errorbank.BadRequest("payment provider rejected the request", errorbank.WithCause(err))
	case errors.Is(err, provider.ErrProviderUnavailable):
		return errorbank.Unavailable("payment provider unavailable", errorbank.WithCause(err))
	default:
		return errorbank.Internal("payment provider call failed", errorbank.WithCause(err))
	}
}

func (s *Service) invalidateOrderCache(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "orders:"+orderID); err != nil {
		s.logger.Warn("order cache invalidation failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) notifyStatus(ctx context.Context, order *entity.Order, paymentStatus entity.PaymentStatus) {
	if s.relay == nil {
		return
	}
	if err := s.relay.PushOrderStatus(ctx, notify.OrderStatusEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(paymentStatus),
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("order status push failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *Service) publishSettled(ctx context.Context, order *entity.Order, entry *entity.PaymentEntry) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := SettledEvent{
		Type:      EventPaymentSettled,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Provider:  string(entry.Provider),
		Reference: entry.Reference,
		Amount:    entry.Amount,
		Currency:  entry.Currency,
		SettledAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal payment settled", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%s", order.ID)), payload); err != nil {
		s.logger.Error("publish payment settled", zap.Error(err))
	}
}

// EventPaymentSettled discriminates settled events on the shared topic.
const EventPaymentSettled = "payment.settled"

// SettledEvent is emitted exactly once per finalized payment, by the
// confirmation path that won the ledger transition.
type SettledEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	SettledAt time.Time `json:"settled_at"`
}
