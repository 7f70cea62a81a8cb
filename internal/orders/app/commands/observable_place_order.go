package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/metrics"
	"github.com/example/checkout/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservablePlaceOrderHandler wraps placement with tracing, logging, and
// metrics.
type ObservablePlaceOrderHandler struct {
	handler PlaceOrderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservablePlaceOrderHandler(handler PlaceOrderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservablePlaceOrderHandler {
	return &ObservablePlaceOrderHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservablePlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*domain.OrderGraph, error) {
	ctx, span := telemetry.StartSpan(ctx, "PlaceOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordPlacementDuration(ctx, duration)
		o.metrics.RecordOrderPlaced(ctx, success)
	}()

	o.logger.InfoContext(ctx, "placing order",
		"user_id", cmd.UserID,
		"use_cart", cmd.UseCart,
		"discount_codes", len(cmd.DiscountCodes),
	)

	graph, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			o.metrics.RecordStockConflict(ctx, stockErr.VariantID)
		}
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to place order",
			"error", err,
			"user_id", cmd.UserID,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", graph.Order.ID),
		attribute.String("order.user_id", graph.Order.UserID),
		attribute.Int64("order.total_cents", graph.Order.TotalCents),
		attribute.Int("order.items", len(graph.Items)),
	)

	o.logger.InfoContext(ctx, "order placed",
		"order_id", graph.Order.ID,
		"user_id", graph.Order.UserID,
		"total_cents", graph.Order.TotalCents,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return graph, nil
}
