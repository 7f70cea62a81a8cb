package events

import (
	"context"
	"log/slog"
)

// NoopEventBus logs events without sending them anywhere. Useful for local
// dev before wiring a broker.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderPlaced(_ context.Context, orderID string) error {
	slog.Debug("event::order_placed", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderPaid(_ context.Context, orderID string) error {
	slog.Debug("event::order_paid", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderCanceled(_ context.Context, orderID string) error {
	slog.Debug("event::order_canceled", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderShipped(_ context.Context, orderID string) error {
	slog.Debug("event::order_shipped", "order_id", orderID)
	return nil
}
