package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/provider"
	"github.com/chopdirect/chopdirect/internal/provider/paystack"
	repoorder "github.com/chopdirect/chopdirect/internal/repository/order"
	repopayment "github.com/chopdirect/chopdirect/internal/repository/payment"
	svc "github.com/chopdirect/chopdirect/internal/service/payment"
	"github.com/chopdirect/chopdirect/internal/settings"
	"github.com/chopdirect/chopdirect/internal/transport/http/webhook"
)

const webhookSecret = "sk_test_secret"

type ledgerStub struct {
	entry       *entity.PaymentEntry
	transitions int
}

func (s *ledgerStub) CreateEntry(context.Context, *entity.PaymentEntry) error { return nil }

func (s *ledgerStub) FindByReference(_ context.Context, prov entity.Provider, ref string) (*entity.PaymentEntry, error) {
	if s.entry == nil || s.entry.Provider != prov || s.entry.Reference != ref {
		return nil, repopayment.ErrNotFound
	}
	return s.entry, nil
}

func (s *ledgerStub) FindOpenByOrder(context.Context, string) (*entity.PaymentEntry, error) {
	return nil, repopayment.ErrNotFound
}

func (s *ledgerStub) Transition(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
	s.transitions++
	return nil
}

type ordersStub struct {
	order   *entity.Order
	updates int
}

func (s *ordersStub) GetByID(context.Context, string) (*entity.Order, error) {
	if s.order == nil {
		return nil, repoorder.ErrNotFound
	}
	return s.order, nil
}

func (s *ordersStub) UpdatePaymentStatus(context.Context, string, entity.PaymentStatus, entity.PaymentStatus) error {
	s.updates++
	return nil
}

type settingsStub struct{}

func (settingsStub) Current(context.Context) (settings.Snapshot, error) {
	return settings.Snapshot{ExchangeRateMicros: 2_500_000}, nil
}

type momoGatewayStub struct {
	queries int
	result  provider.StatusResult
	err     error
}

func (momoGatewayStub) Name() string { return "momo" }

func (momoGatewayStub) Initiate(context.Context, provider.InitiateRequest) (provider.InitiateResult, error) {
	return provider.InitiateResult{}, provider.ErrInvalidRequest
}

func (s *momoGatewayStub) QueryStatus(context.Context, string) (provider.StatusResult, error) {
	s.queries++
	if s.err != nil {
		return provider.StatusResult{}, s.err
	}
	return s.result, nil
}

type fixture struct {
	echo    *echo.Echo
	ledger  *ledgerStub
	orders  *ordersStub
	momo    *momoGatewayStub
	cfg     config.Config
	handler *webhook.Handler
}

func newFixture(t *testing.T, enforceIPs bool) *fixture {
	t.Helper()

	cfg := config.Config{}
	cfg.Payments.Paystack.SecretKey = webhookSecret
	cfg.Payments.Paystack.EnforceIPs = enforceIPs
	cfg.Payments.Paystack.AllowedIPs = []string{"52.31.139.75"}
	cfg.Payments.Paystack.MinorPerMajor = 100
	cfg.Payments.Momo.MinorPerMajor = 100
	cfg.Payments.CardCurrency = "NGN"
	cfg.Payments.MomoCurrency = "EUR"

	gw := paystack.New(cfg)
	ledger := &ledgerStub{entry: &entity.PaymentEntry{
		ID:                 "entry-1",
		OrderID:            "order-1",
		Provider:           entity.ProviderPaystack,
		Reference:          "REF-1",
		Amount:             200_000,
		Currency:           "NGN",
		ExchangeRateMicros: 2_500_000,
		Status:             entity.PaymentPending,
	}}
	orders := &ordersStub{order: &entity.Order{
		ID:            "order-1",
		UserID:        "user-1",
		Total:         5000,
		OrderStatus:   entity.OrderPendingConfirmation,
		PaymentStatus: entity.PaymentPending,
	}}

	momoGW := &momoGatewayStub{result: provider.StatusResult{
		Status:   provider.StatusSucceeded,
		Amount:   200_000,
		Currency: "EUR",
	}}

	service := svc.NewService(svc.Params{
		Ledger:   ledger,
		Orders:   orders,
		Gateways: []provider.Gateway{gw, momoGW},
		Settings: settingsStub{},
		Config:   cfg,
		Logger:   zap.NewNop(),
	})

	e := echo.New()
	h := webhook.NewHandler(service, gw, cfg, zap.NewNop())
	webhook.Register(e, h)

	return &fixture{echo: e, ledger: ledger, orders: orders, momo: momoGW, cfg: cfg, handler: h}
}

func (f *fixture) useMomoEntry() {
	f.ledger.entry = &entity.PaymentEntry{
		ID:                 "entry-2",
		OrderID:            "order-1",
		Provider:           entity.ProviderMomo,
		Reference:          "MOMO-REF-1",
		Amount:             200_000,
		Currency:           "EUR",
		ExchangeRateMicros: 2_500_000,
		Status:             entity.PaymentPending,
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postPaystack(f *fixture, body []byte, signature, remoteIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	if remoteIP != "" {
		req.Header.Set(echo.HeaderXRealIP, remoteIP)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestPaystackWebhookFinalizesPayment(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":200000,"currency":"NGN","status":"success"}}`)
	rec := postPaystack(f, body, sign(body), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.ledger.transitions)
	require.Equal(t, 1, f.orders.updates)
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":200000}}`)
	rec := postPaystack(f, body, "0badc0de", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, f.ledger.transitions)
}

func TestPaystackWebhookRejectsMissingSignature(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1"}}`)
	rec := postPaystack(f, body, "", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaystackWebhookIPAllowlist(t *testing.T) {
	f := newFixture(t, true)
	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":200000,"currency":"NGN"}}`)

	rec := postPaystack(f, body, sign(body), "203.0.113.9")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, f.ledger.transitions)

	rec = postPaystack(f, body, sign(body), "52.31.139.75")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.ledger.transitions)
}

func TestPaystackWebhookAcksUnknownReference(t *testing.T) {
	f := newFixture(t, false)

	// Authentic push for a reference we never issued: acknowledged so the
	// provider stops retrying, nothing mutated.
	body := []byte(`{"event":"charge.success","data":{"reference":"REF-GHOST","amount":1,"currency":"NGN"}}`)
	rec := postPaystack(f, body, sign(body), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.ledger.transitions)
}

func TestPaystackWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"event":"transfer.success","data":{"reference":"REF-1"}}`)
	rec := postPaystack(f, body, sign(body), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.ledger.transitions)
}

func TestPaystackWebhookAmountMismatchStillAcked(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":1,"currency":"NGN"}}`)
	rec := postPaystack(f, body, sign(body), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.ledger.transitions, "mismatched amount must leave the entry pending")
}

func postMomo(f *fixture, body []byte, reference string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/momo", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if reference != "" {
		req.Header.Set("X-Reference-Id", reference)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestMomoWebhookRequeriesProvider(t *testing.T) {
	f := newFixture(t, false)
	f.useMomoEntry()

	// The callback claims a failure; the provider says the charge succeeded.
	// Only the provider's answer may settle the entry.
	body := []byte(`{"externalId":"ext-1","referenceId":"MOMO-REF-1","status":"FAILED"}`)
	rec := postMomo(f, body, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.momo.queries, "callback body must never be trusted without a query")
	require.Equal(t, 1, f.ledger.transitions)
	require.Equal(t, 1, f.orders.updates)
}

func TestMomoWebhookReferenceHeaderFallback(t *testing.T) {
	f := newFixture(t, false)
	f.useMomoEntry()

	rec := postMomo(f, []byte(`{}`), "MOMO-REF-1")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.momo.queries)
	require.Equal(t, 1, f.ledger.transitions)
}

func TestMomoWebhookAcksJunkBody(t *testing.T) {
	f := newFixture(t, false)
	f.useMomoEntry()

	rec := postMomo(f, []byte(`not json at all`), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.momo.queries)
	require.Zero(t, f.ledger.transitions)
}

func TestMomoWebhookAcksMissingReference(t *testing.T) {
	f := newFixture(t, false)
	f.useMomoEntry()

	rec := postMomo(f, []byte(`{"externalId":"ext-1"}`), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.momo.queries)
	require.Zero(t, f.ledger.transitions)
}

func TestMomoWebhookProviderFailureStillAcked(t *testing.T) {
	f := newFixture(t, false)
	f.useMomoEntry()
	f.momo.err = provider.ErrProviderUnavailable

	rec := postMomo(f, []byte(`{"referenceId":"MOMO-REF-1"}`), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.momo.queries)
	require.Zero(t, f.ledger.transitions, "entry stays pending until the provider answers")
}
