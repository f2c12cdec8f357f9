package settings

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/chopdirect/chopdirect/internal/database"
	"github.com/chopdirect/chopdirect/internal/entity"
)

var repoTracer = otel.Tracer("github.com/chopdirect/chopdirect/repository/settings")

// ErrNotFound is returned when no settings row has been created yet.
var ErrNotFound = errors.New("internal settings not found")

// Repository reads the platform pricing settings.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a settings repository over the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// Latest returns the most recent settings row.
func (r *Repository) Latest(ctx context.Context) (*entity.InternalSettings, error) {
	ctx, span := repoTracer.Start(ctx, "SettingsRepository.Latest")
	defer span.End()

	row := new(entity.InternalSettings)
	err := r.reader.NewSelect().Model(row).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return row, nil
}
