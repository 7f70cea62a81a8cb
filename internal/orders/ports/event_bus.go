package ports

import "context"

// EventBus defines the contract for publishing order lifecycle events.
// Publishing happens after the owning transaction commits; a publish
// failure never unwinds the order.
type EventBus interface {
	PublishOrderPlaced(ctx context.Context, orderID string) error
	PublishOrderPaid(ctx context.Context, orderID string) error
	PublishOrderCanceled(ctx context.Context, orderID string) error
	PublishOrderShipped(ctx context.Context, orderID string) error
}
