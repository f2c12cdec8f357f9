package payment

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/presentation/http/response"
	service "github.com/chopdirect/chopdirect/internal/service/payment"
	"github.com/chopdirect/chopdirect/internal/transport/http/middleware"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/chopdirect/chopdirect/transport/http/payment")

// Handler exposes payment initiation and verification over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a payment Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders", middleware.RequireUser())
	g.POST("/:id/pay", h.pay)
	g.POST("/:id/verify", h.verify)
}

func (h *Handler) pay(c echo.Context) error {
	b := response.New(c)

	var payload dto.InitiatePaymentInput
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	orderID := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "payments.initiate", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.method", payload.PaymentMethod),
	))
	defer span.End()

	res, err := h.svc.Initiate(ctx, middleware.UserID(c), middleware.UserEmail(c), orderID, payload)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(res).Build()
}

func (h *Handler) verify(c echo.Context) error {
	b := response.New(c)

	var payload dto.VerifyPaymentInput
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	orderID := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "payments.verify", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	res, err := h.svc.ConfirmPoll(ctx, middleware.UserID(c), orderID, payload.TransactionRef)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(res).Build()
}
