package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chopdirect/chopdirect/internal/database"
	"github.com/chopdirect/chopdirect/internal/entity"
)

var repoTracer = otel.Tracer("github.com/chopdirect/chopdirect/repository/payment")

var (
	// ErrNotFound is returned when no ledger entry matches.
	ErrNotFound = errors.New("payment entry not found")

	// ErrDuplicateReference is returned when the (provider, reference)
	// idempotency key already exists.
	ErrDuplicateReference = errors.New("transaction reference already recorded")

	// ErrStaleTransition is returned when a compare-and-set transition finds
	// the entry no longer in the expected status.
	ErrStaleTransition = errors.New("payment status changed concurrently")
)

// Repository is the payment ledger: one row per attempt, keyed by the
// provider-issued transaction reference.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a ledger repository over the configured connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// CreateEntry inserts a new pending attempt. The unique (provider,
// transaction_reference) index is the idempotency guard; a conflicting insert
// is reported as ErrDuplicateReference, never silently absorbed.
func (r *Repository) CreateEntry(ctx context.Context, entry *entity.PaymentEntry) error {
	if entry == nil {
		return errors.New("nil payment entry")
	}
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.CreateEntry", trace.WithAttributes(
		attribute.String("payment.provider", string(entry.Provider)),
		attribute.String("payment.reference", entry.Reference),
	))
	defer span.End()

	res, err := r.writer.NewInsert().Model(entry).
		On("CONFLICT (provider, transaction_reference) DO NOTHING").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "duplicate reference")
		return ErrDuplicateReference
	}
	return nil
}

// FindByReference resolves an entry by its idempotency key.
func (r *Repository) FindByReference(ctx context.Context, provider entity.Provider, reference string) (*entity.PaymentEntry, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.FindByReference", trace.WithAttributes(
		attribute.String("payment.provider", string(provider)),
		attribute.String("payment.reference", reference),
	))
	defer span.End()

	entry := new(entity.PaymentEntry)
	err := r.reader.NewSelect().Model(entry).
		Where("provider = ?", provider).
		Where("transaction_reference = ?", reference).
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
	return entry, nil
}

// FindOpenByOrder returns the order's entry in pending or paid state, if any.
// At most one such entry exists at a time.
func (r *Repository) FindOpenByOrder(ctx context.Context, orderID string) (*entity.PaymentEntry, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.FindOpenByOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	entry := new(entity.PaymentEntry)
	err := r.reader.NewSelect().Model(entry).
		Where("order_id = ?", orderID).
		Where("payment_status IN (?)", bun.In([]entity.PaymentStatus{entity.PaymentPending, entity.PaymentPaid})).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entry, nil
}

// Transition moves an entry between statuses with a compare-and-set: the
// update only lands if the entry is still in the expected prior status.
// Exactly one of two racing confirmations can win; the loser observes
// ErrStaleTransition.
func (r *Repository) Transition(ctx context.Context, id string, from, to entity.PaymentStatus) error {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.Transition", trace.WithAttributes(
		attribute.String("payment.id", id),
		attribute.String("payment.from", string(from)),
		attribute.String("payment.to", string(to)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.PaymentEntry)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("payment_status = ?", from).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "stale transition")
		return ErrStaleTransition
	}
	return nil
}
