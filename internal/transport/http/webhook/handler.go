// Package webhook terminates provider callbacks. Paystack pushes are trusted
// only after HMAC signature verification; MoMo callbacks are treated as a
// hint and always re-queried. Once a request is authenticated the handlers
// acknowledge with 2xx regardless of the reconciliation outcome, so the
// provider stops retrying and any discrepancy is resolved on our side.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/provider"
	"github.com/chopdirect/chopdirect/internal/provider/paystack"
	service "github.com/chopdirect/chopdirect/internal/service/payment"
)

var httpTracer = otel.Tracer("github.com/chopdirect/chopdirect/transport/http/webhook")

const signatureHeader = "x-paystack-signature"

// Handler terminates payment provider callbacks.
type Handler struct {
	svc      *service.Service
	paystack *paystack.Gateway
	cfg      config.Paystack
	logger   *zap.Logger
}

// NewHandler constructs a webhook Handler.
func NewHandler(svc *service.Service, gw *paystack.Gateway, cfg config.Config, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, paystack: gw, cfg: cfg.Payments.Paystack, logger: logger}
}

// Register routes with the provided Echo instance. Webhooks carry their own
// authentication; no identity middleware applies.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/webhooks/paystack", h.handlePaystack)
	e.POST("/webhooks/momo", h.handleMomo)
}

func (h *Handler) handlePaystack(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "webhooks.paystack")
	defer span.End()

	if h.cfg.EnforceIPs && !h.allowedIP(c.RealIP()) {
		h.logger.Warn("paystack webhook from unexpected source", zap.String("remote_ip", c.RealIP()))
		return c.NoContent(http.StatusForbidden)
	}

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	// The signature gate runs on the raw bytes, before any decoding.
	if !h.paystack.VerifySignature(rawBody, c.Request().Header.Get(signatureHeader)) {
		h.logger.Warn("paystack webhook signature rejected", zap.String("remote_ip", c.RealIP()))
		return c.NoContent(http.StatusUnauthorized)
	}

	event, err := paystack.ParseWebhook(rawBody)
	if err != nil {
		h.logger.Warn("paystack webhook unparseable", zap.Error(err))
		return c.NoContent(http.StatusOK)
	}
	span.SetAttributes(
		attribute.String("webhook.event", event.Event),
		attribute.String("payment.reference", event.Data.Reference),
	)

	var status provider.ChargeStatus
	switch event.Event {
	case paystack.EventChargeSuccess:
		status = provider.StatusSucceeded
	case paystack.EventChargeFailed:
		status = provider.StatusFailed
	default:
		// Not a charge outcome; acknowledge and move on.
		return c.NoContent(http.StatusOK)
	}

	result, err := h.svc.Confirm(ctx, service.ConfirmInput{
		Provider:  entity.ProviderPaystack,
		Reference: event.Data.Reference,
		Source:    service.SourceWebhook,
		Pushed: &provider.StatusResult{
			Status:   status,
			Amount:   event.Data.Amount,
			Currency: event.Data.Currency,
		},
	})
	if err != nil {
		// The push was authentic; retrying it will not change the outcome.
		h.logger.Error("paystack webhook reconciliation failed",
			zap.String("reference", event.Data.Reference), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}

	h.logger.Info("paystack webhook reconciled",
		zap.String("reference", event.Data.Reference),
		zap.String("outcome", string(result.Outcome)),
	)
	return c.NoContent(http.StatusOK)
}

// momoCallback is the minimal slice of the MoMo callback body we read. The
// payload is unauthenticated, so only the reference is taken from it; the
// status comes from querying the provider.
type momoCallback struct {
	ExternalID  string `json:"externalId"`
	ReferenceID string `json:"referenceId"`
}

func (h *Handler) handleMomo(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "webhooks.momo")
	defer span.End()

	var callback momoCallback
	if err := json.NewDecoder(c.Request().Body).Decode(&callback); err != nil {
		return c.NoContent(http.StatusOK)
	}
	reference := callback.ReferenceID
	if reference == "" {
		reference = c.Request().Header.Get("X-Reference-Id")
	}
	if reference == "" {
		return c.NoContent(http.StatusOK)
	}
	span.SetAttributes(attribute.String("payment.reference", reference))

	// Pushed left nil on purpose: the provider is re-queried for the
	// authoritative status.
	result, err := h.svc.Confirm(ctx, service.ConfirmInput{
		Provider:  entity.ProviderMomo,
		Reference: reference,
		Source:    service.SourceWebhook,
	})
	if err != nil {
		h.logger.Error("momo callback reconciliation failed",
			zap.String("reference", reference), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}

	h.logger.Info("momo callback reconciled",
		zap.String("reference", reference),
		zap.String("outcome", string(result.Outcome)),
	)
	return c.NoContent(http.StatusOK)
}

func (h *Handler) allowedIP(remote string) bool {
	for _, ip := range h.cfg.AllowedIPs {
		if ip == remote {
			return true
		}
	}
	return false
}
