package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/entity"
	"github.com/chopdirect/chopdirect/internal/presentation/http/response"
	"github.com/chopdirect/chopdirect/internal/transport/http/middleware"
	service "github.com/chopdirect/chopdirect/internal/service/order"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/chopdirect/chopdirect/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders", middleware.RequireUser())
	g.POST("", h.place)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/status", h.advanceStatus)
}

func (h *Handler) place(c echo.Context) error {
	b := response.New(c)

	var payload dto.PlaceOrderInput
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.place", trace.WithAttributes(
		attribute.String("restaurant.id", payload.RestaurantID),
		attribute.Int("order.lines", len(payload.Items)),
	))
	defer span.End()

	order, err := h.svc.Place(ctx, middleware.UserID(c), payload)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.ListByUser(ctx, middleware.UserID(c))
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toDTO(order))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, middleware.UserID(c), id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) advanceStatus(c echo.Context) error {
	b := response.New(c)

	var payload dto.AdvanceOrderStatusInput
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	next := entity.OrderStatus(payload.Status)
	if !next.Valid() {
		return b.WithError(errorbank.BadRequest("unknown order status", errorbank.WithDetail("status", payload.Status))).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.advanceStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.next_status", payload.Status),
	))
	defer span.End()

	order, err := h.svc.AdvanceStatus(ctx, id, next)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func toDTO(order *entity.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.OrderItemResponse{
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return dto.OrderResponse{
		ID:                  order.ID,
		RestaurantID:        order.RestaurantID,
		Name:                order.Name,
		Address:             order.Address,
		Phone:               order.Phone,
		SpecialInstructions: order.SpecialInstructions,
		Subtotal:            order.Subtotal,
		DeliveryFee:         order.DeliveryFee,
		ServiceCharge:       order.ServiceCharge,
		Total:               order.Total,
		OrderStatus:         string(order.OrderStatus),
		PaymentStatus:       string(order.PaymentStatus),
		Items:               items,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
}
