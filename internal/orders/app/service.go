package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/checkout/internal/cache"
	"github.com/example/checkout/internal/orders/app/commands"
	"github.com/example/checkout/internal/orders/app/queries"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/metrics"
	"github.com/example/checkout/internal/orders/ports"
)

// Service bundles the order use cases exposed through the API.
type Service struct {
	idemStore ports.IdempotencyStore

	placeOrder       commands.PlaceOrderHandler
	cancelOrder      *commands.CancelOrderCommandHandler
	updateStatus     *commands.UpdateStatusCommandHandler
	confirmPayment   *commands.ConfirmPaymentCommandHandler
	updateTracking   *commands.UpdateTrackingCommandHandler
	getOrder         *queries.GetOrderQueryHandler
	listOrders       *queries.ListOrdersQueryHandler
	validateDiscount *queries.ValidateDiscountQueryHandler
	stats            *queries.StatsQueryHandler
}

// NewService wires required dependencies.
func NewService(
	repo ports.OrderRepository,
	store ports.TxStore,
	statsSource ports.StatsSource,
	events ports.EventBus,
	idem ports.IdempotencyStore,
	statsCache cache.Cache,
	statsTTL time.Duration,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	placeHandler := commands.NewPlaceOrderCommandHandler(store, events)
	observablePlace := commands.NewObservablePlaceOrderHandler(placeHandler, logger, metrics)

	return &Service{
		idemStore:        idem,
		placeOrder:       observablePlace,
		cancelOrder:      commands.NewCancelOrderCommandHandler(store, events),
		updateStatus:     commands.NewUpdateStatusCommandHandler(store, events),
		confirmPayment:   commands.NewConfirmPaymentCommandHandler(store, events),
		updateTracking:   commands.NewUpdateTrackingCommandHandler(store, events),
		getOrder:         queries.NewGetOrderQueryHandler(repo),
		listOrders:       queries.NewListOrdersQueryHandler(repo),
		validateDiscount: queries.NewValidateDiscountQueryHandler(repo),
		stats:            queries.NewStatsQueryHandler(statsSource, statsCache, statsTTL),
	}
}

// PlaceOrder runs the atomic placement transaction and returns the created
// order aggregate.
func (s *Service) PlaceOrder(ctx context.Context, cmd commands.PlaceOrderCommand) (*domain.OrderGraph, error) {
	return s.placeOrder.Handle(ctx, cmd)
}

// GetOrder retrieves one of the caller's orders with items, payment,
// shipping, and applied discounts.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*domain.OrderGraph, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{UserID: userID, OrderID: orderID})
}

// ListOrders returns the caller's order summaries, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string, filter ports.ListFilter) ([]ports.OrderSummary, error) {
	return s.listOrders.Handle(ctx, queries.ListOrdersQuery{UserID: userID, Filter: filter})
}

// CancelOrder cancels a pending or paid order and restores its stock.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	return s.cancelOrder.Handle(ctx, commands.CancelOrderCommand{UserID: userID, OrderID: orderID})
}

// UpdateStatus applies a status machine transition to an order.
func (s *Service) UpdateStatus(ctx context.Context, cmd commands.UpdateStatusCommand) (*domain.Order, error) {
	return s.updateStatus.Handle(ctx, cmd)
}

// ConfirmPayment records a gateway transaction and moves the order to paid.
func (s *Service) ConfirmPayment(ctx context.Context, cmd commands.ConfirmPaymentCommand) (*domain.Payment, error) {
	return s.confirmPayment.Handle(ctx, cmd)
}

// UpdateTracking attaches a tracking number and marks the shipment shipped.
func (s *Service) UpdateTracking(ctx context.Context, cmd commands.UpdateTrackingCommand) error {
	return s.updateTracking.Handle(ctx, cmd)
}

// ValidateDiscount previews whether a code would be accepted right now.
func (s *Service) ValidateDiscount(ctx context.Context, code string) (*queries.DiscountValidation, error) {
	return s.validateDiscount.Handle(ctx, queries.ValidateDiscountQuery{Code: code})
}

// Stats returns cached store-wide order and stock statistics.
func (s *Service) Stats(ctx context.Context) (*ports.StoreStats, error) {
	return s.stats.Handle(ctx)
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
