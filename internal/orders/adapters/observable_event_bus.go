package adapters

import (
	"context"
	"time"

	"github.com/example/checkout/internal/events"
	"github.com/example/checkout/internal/orders/ports"
	"github.com/example/checkout/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *events.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *events.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderPlaced(ctx context.Context, orderID string) error {
	return e.publish(ctx, "order.placed", orderID, e.bus.PublishOrderPlaced)
}

func (e *ObservableEventBus) PublishOrderPaid(ctx context.Context, orderID string) error {
	return e.publish(ctx, "order.paid", orderID, e.bus.PublishOrderPaid)
}

func (e *ObservableEventBus) PublishOrderCanceled(ctx context.Context, orderID string) error {
	return e.publish(ctx, "order.canceled", orderID, e.bus.PublishOrderCanceled)
}

func (e *ObservableEventBus) PublishOrderShipped(ctx context.Context, orderID string) error {
	return e.publish(ctx, "order.shipped", orderID, e.bus.PublishOrderShipped)
}

func (e *ObservableEventBus) publish(ctx context.Context, eventType, orderID string, fn func(context.Context, string) error) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("event.type", eventType),
		attribute.String("routing_key", eventType),
	)

	start := time.Now()
	err := fn(ctx, orderID)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, eventType, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
