package adapters

import (
	"context"
	"time"

	"github.com/example/checkout/internal/database"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
	"github.com/example/checkout/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// readRepository is the read-side surface the decorator wraps. The postgres
// store satisfies it alongside the transactional port.
type readRepository interface {
	ports.OrderRepository
	ports.StatsSource
}

type ObservableRepository struct {
	repo    readRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo readRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) GetGraph(ctx context.Context, userID, orderID string) (*domain.OrderGraph, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetGraph")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("operation", "get_graph"),
	)

	start := time.Now()
	graph, err := r.repo.GetGraph(ctx, userID, orderID)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "get_order_graph", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return graph, nil
}

func (r *ObservableRepository) List(ctx context.Context, userID string, filter ports.ListFilter) ([]ports.OrderSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	summaries, err := r.repo.List(ctx, userID, filter)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "list_orders", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(summaries)))
	telemetry.SetSpanSuccess(span)
	return summaries, nil
}

func (r *ObservableRepository) DiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.DiscountByCode")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("discount.code", code),
		attribute.String("operation", "discount_by_code"),
	)

	start := time.Now()
	discount, err := r.repo.DiscountByCode(ctx, code)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "get_discount_by_code", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return discount, nil
}

func (r *ObservableRepository) ReadStats(ctx context.Context) (*ports.StoreStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.ReadStats")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("operation", "read_stats"))

	start := time.Now()
	stats, err := r.repo.ReadStats(ctx)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "read_store_stats", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return stats, nil
}
