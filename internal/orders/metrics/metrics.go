package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersPlacedTotal   metric.Int64Counter
	placementDuration   metric.Float64Histogram
	stockConflictsTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersPlacedTotal, err = meter.Int64Counter(
		"orders_placed_total",
		metric.WithDescription("Total number of order placements"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_placed_total counter: %w", err)
	}

	m.placementDuration, err = meter.Float64Histogram(
		"order_placement_duration_seconds",
		metric.WithDescription("Duration of order placement transactions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_placement_duration histogram: %w", err)
	}

	m.stockConflictsTotal, err = meter.Int64Counter(
		"stock_conflicts_total",
		metric.WithDescription("Placements rejected because a variant had insufficient stock"),
		metric.WithUnit("{placement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stock_conflicts_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderPlaced(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ordersPlacedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordPlacementDuration(ctx context.Context, durationSeconds float64) {
	m.placementDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordStockConflict(ctx context.Context, variantID string) {
	m.stockConflictsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant_id", variantID),
	))
}
