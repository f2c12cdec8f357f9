package restaurant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chopdirect/chopdirect/internal/database"
	"github.com/chopdirect/chopdirect/internal/entity"
)

var repoTracer = otel.Tracer("github.com/chopdirect/chopdirect/repository/restaurant")

// ErrNotFound is returned when a restaurant is missing.
var ErrNotFound = errors.New("restaurant not found")

// Repository is a thin read layer over the catalog tables.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a catalog repository over the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// GetByID fetches a restaurant by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Restaurant, error) {
	ctx, span := repoTracer.Start(ctx, "RestaurantRepository.GetByID", trace.WithAttributes(attribute.String("restaurant.id", id)))
	defer span.End()

	restaurant := new(entity.Restaurant)
	err := r.reader.NewSelect().Model(restaurant).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return restaurant, nil
}

// GetBySlug fetches a restaurant by its storefront slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*entity.Restaurant, error) {
	ctx, span := repoTracer.Start(ctx, "RestaurantRepository.GetBySlug", trace.WithAttributes(attribute.String("restaurant.slug", slug)))
	defer span.End()

	restaurant := new(entity.Restaurant)
	err := r.reader.NewSelect().Model(restaurant).Where("slug = ?", slug).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return restaurant, nil
}

// MenuByRestaurant lists the available items of a restaurant.
func (r *Repository) MenuByRestaurant(ctx context.Context, restaurantID string) ([]*entity.Item, error) {
	ctx, span := repoTracer.Start(ctx, "RestaurantRepository.MenuByRestaurant", trace.WithAttributes(attribute.String("restaurant.id", restaurantID)))
	defer span.End()

	var items []*entity.Item
	err := r.reader.NewSelect().Model(&items).
		Where("restaurant_id = ?", restaurantID).
		Where("is_available = TRUE").
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return items, nil
}

// ItemsByIDs loads menu items of one restaurant keyed by id, for pricing
// order lines at placement time.
func (r *Repository) ItemsByIDs(ctx context.Context, restaurantID string, ids []string) (map[string]*entity.Item, error) {
	ctx, span := repoTracer.Start(ctx, "RestaurantRepository.ItemsByIDs", trace.WithAttributes(attribute.String("restaurant.id", restaurantID)))
	defer span.End()

	if len(ids) == 0 {
		return map[string]*entity.Item{}, nil
	}

	var items []*entity.Item
	err := r.reader.NewSelect().Model(&items).
		Where("restaurant_id = ?", restaurantID).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	byID := make(map[string]*entity.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID, nil
}
