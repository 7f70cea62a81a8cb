package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// UpdateStatusCommand moves an order along its status machine.
type UpdateStatusCommand struct {
	UserID  string
	OrderID string
	Status  string
}

func (c UpdateStatusCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user id is required")
	}
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError("order id is required")
	}
	if _, ok := domain.ParseOrderStatus(c.Status); !ok {
		return domain.NewValidationError("unknown order status %q", c.Status)
	}
	return nil
}

// UpdateStatusCommandHandler applies a status transition inside a unit of
// work. Transitioning to canceled restores the order's decremented stock in
// the same transaction.
type UpdateStatusCommandHandler struct {
	store  ports.TxStore
	events ports.EventBus
}

func NewUpdateStatusCommandHandler(store ports.TxStore, events ports.EventBus) *UpdateStatusCommandHandler {
	return &UpdateStatusCommandHandler{store: store, events: events}
}

func (h *UpdateStatusCommandHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	next, _ := domain.ParseOrderStatus(cmd.Status)

	order, err := transitionOrder(ctx, h.store, cmd.UserID, cmd.OrderID, next)
	if err != nil {
		return nil, err
	}

	if next == domain.StatusCanceled {
		if err := h.events.PublishOrderCanceled(ctx, order.ID); err != nil {
			return order, fmt.Errorf("status updated but failed to publish event: %w", err)
		}
	}
	return order, nil
}

// CancelOrderCommand is the user-facing cancel operation, allowed only
// while the order is pending or paid.
type CancelOrderCommand struct {
	UserID  string
	OrderID string
}

type CancelOrderCommandHandler struct {
	store  ports.TxStore
	events ports.EventBus
}

func NewCancelOrderCommandHandler(store ports.TxStore, events ports.EventBus) *CancelOrderCommandHandler {
	return &CancelOrderCommandHandler{store: store, events: events}
}

func (h *CancelOrderCommandHandler) Handle(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	var updated *domain.Order
	err := h.store.InTx(ctx, func(tx ports.Tx) error {
		order, err := tx.OrderForUpdate(ctx, cmd.UserID, cmd.OrderID)
		if err != nil {
			return err
		}
		if !order.CanCancel() {
			return &domain.InvalidStatusTransitionError{From: order.Status, To: domain.StatusCanceled}
		}
		updated, err = cancelLocked(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderCanceled(ctx, updated.ID); err != nil {
		return updated, fmt.Errorf("order canceled but failed to publish event: %w", err)
	}
	return updated, nil
}

// transitionOrder locks the order, validates the transition, and persists
// the new status.
func transitionOrder(ctx context.Context, store ports.TxStore, userID, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order
	err := store.InTx(ctx, func(tx ports.Tx) error {
		order, err := tx.OrderForUpdate(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if next == domain.StatusCanceled {
			if !order.Status.CanTransitionTo(next) {
				return &domain.InvalidStatusTransitionError{From: order.Status, To: next}
			}
			updated, err = cancelLocked(ctx, tx, order)
			return err
		}
		if err := order.Transition(next); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.UpdateOrderStatus(ctx, order.ID, next, now); err != nil {
			return err
		}
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// cancelLocked restores the order's stock and marks it canceled. The caller
// holds the order row lock and has validated the transition.
func cancelLocked(ctx context.Context, tx ports.Tx, order *domain.Order) (*domain.Order, error) {
	if err := tx.RestoreStock(ctx, order.ID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := tx.UpdateOrderStatus(ctx, order.ID, domain.StatusCanceled, now); err != nil {
		return nil, err
	}
	order.Status = domain.StatusCanceled
	order.UpdatedAt = now
	return order, nil
}
