package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/database"
	"github.com/chopdirect/chopdirect/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run applies all seeders in dependency order.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.Settings(ctx); err != nil {
		return err
	}
	return s.Catalog(ctx)
}

// Settings inserts a pricing row if none exists yet. Rate 2.5 base units per
// provider unit, expressed in micros.
func (s *Seeder) Settings(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*entity.InternalSettings)(nil)).Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	row := entity.InternalSettings{
		ID:                 uuid.NewString(),
		ExchangeRateMicros: 2_500_000,
		DeliveryFee:        500,
		ServiceCharge:      250,
		CreatedAt:          time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded internal settings", zap.Int64("exchange_rate_micros", row.ExchangeRateMicros))
	}
	return nil
}

// Catalog seeds a demo restaurant with a small menu if it is missing.
func (s *Seeder) Catalog(ctx context.Context) error {
	now := time.Now().UTC()
	restaurant := entity.Restaurant{
		ID:              uuid.NewString(),
		Slug:            "mama-put-express",
		Name:            "Mama Put Express",
		Address:         "12 Allen Avenue, Ikeja",
		PhoneNo:         "+2348012345678",
		IsActive:        true,
		PreparationTime: 25,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	res, err := s.db.NewInsert().Model(&restaurant).
		On("CONFLICT (slug) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		// Slug already seeded; keep the existing menu untouched.
		return nil
	}

	items := []entity.Item{
		{ID: uuid.NewString(), RestaurantID: restaurant.ID, Name: "Jollof Rice", Price: 1500, IsAvailable: true, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), RestaurantID: restaurant.ID, Name: "Grilled Chicken", Price: 2500, IsAvailable: true, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), RestaurantID: restaurant.ID, Name: "Fried Plantain", Price: 800, IsAvailable: true, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := s.db.NewInsert().Model(&items).Exec(ctx); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog",
			zap.String("restaurant", restaurant.Slug),
			zap.Int("items", len(items)),
		)
	}
	return nil
}
