package catalog

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chopdirect/chopdirect/internal/dto"
	"github.com/chopdirect/chopdirect/internal/presentation/http/response"
	service "github.com/chopdirect/chopdirect/internal/service/catalog"
)

var httpTracer = otel.Tracer("github.com/chopdirect/chopdirect/transport/http/catalog")

// Handler exposes public storefront reads. No identity required.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a catalog Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/restaurants/:slug", h.bySlug)
}

func (h *Handler) bySlug(c echo.Context) error {
	b := response.New(c)

	slug := c.Param("slug")
	ctx, span := httpTracer.Start(c.Request().Context(), "catalog.bySlug", trace.WithAttributes(attribute.String("restaurant.slug", slug)))
	defer span.End()

	storefront, err := h.svc.BySlug(ctx, slug)
	if err != nil {
		return b.WithError(err).Build()
	}

	menu := make([]dto.MenuItemResponse, 0, len(storefront.Menu))
	for _, item := range storefront.Menu {
		menu = append(menu, dto.MenuItemResponse{
			ID:    item.ID,
			Name:  item.Name,
			Price: item.Price,
		})
	}
	return b.WithData(dto.StorefrontResponse{
		ID:              storefront.Restaurant.ID,
		Slug:            storefront.Restaurant.Slug,
		Name:            storefront.Restaurant.Name,
		Address:         storefront.Restaurant.Address,
		PreparationTime: storefront.Restaurant.PreparationTime,
		Menu:            menu,
	}).Build()
}
