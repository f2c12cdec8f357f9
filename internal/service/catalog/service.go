// Package catalog serves the public storefront reads.
package catalog

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/entity"
	reporestaurant "github.com/chopdirect/chopdirect/internal/repository/restaurant"
	"github.com/chopdirect/chopdirect/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/chopdirect/chopdirect/service/catalog")

// Repository is the catalog persistence contract.
type Repository interface {
	GetBySlug(ctx context.Context, slug string) (*entity.Restaurant, error)
	MenuByRestaurant(ctx context.Context, restaurantID string) ([]*entity.Item, error)
}

// Storefront is one restaurant with its orderable menu.
type Storefront struct {
	Restaurant *entity.Restaurant
	Menu       []*entity.Item
}

// Service answers storefront lookups.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService wires a catalog Service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// BySlug resolves an active restaurant and its available menu. Inactive
// storefronts read as absent.
func (s *Service) BySlug(ctx context.Context, slug string) (*Storefront, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.BySlug", trace.WithAttributes(attribute.String("restaurant.slug", slug)))
	defer span.End()

	if slug == "" {
		return nil, errorbank.BadRequest("slug is required")
	}

	restaurant, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, reporestaurant.ErrNotFound) {
			return nil, errorbank.NotFound("restaurant not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load restaurant", errorbank.WithCause(err))
	}
	if !restaurant.IsActive {
		return nil, errorbank.NotFound("restaurant not found")
	}

	menu, err := s.repo.MenuByRestaurant(ctx, restaurant.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load menu", errorbank.WithCause(err))
	}

	return &Storefront{Restaurant: restaurant, Menu: menu}, nil
}
