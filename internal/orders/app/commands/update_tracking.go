package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// UpdateTrackingCommand attaches a tracking number to an order's shipment
// and marks it shipped.
type UpdateTrackingCommand struct {
	UserID         string
	OrderID        string
	TrackingNumber string
}

func (c UpdateTrackingCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user id is required")
	}
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError("order id is required")
	}
	if strings.TrimSpace(c.TrackingNumber) == "" {
		return domain.ErrTrackingRequired
	}
	return nil
}

type UpdateTrackingCommandHandler struct {
	store  ports.TxStore
	events ports.EventBus
}

func NewUpdateTrackingCommandHandler(store ports.TxStore, events ports.EventBus) *UpdateTrackingCommandHandler {
	return &UpdateTrackingCommandHandler{store: store, events: events}
}

func (h *UpdateTrackingCommandHandler) Handle(ctx context.Context, cmd UpdateTrackingCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	err := h.store.InTx(ctx, func(tx ports.Tx) error {
		order, err := tx.OrderForUpdate(ctx, cmd.UserID, cmd.OrderID)
		if err != nil {
			return err
		}
		return tx.MarkShipped(ctx, order.ID, strings.TrimSpace(cmd.TrackingNumber), time.Now().UTC())
	})
	if err != nil {
		return err
	}

	if err := h.events.PublishOrderShipped(ctx, cmd.OrderID); err != nil {
		return fmt.Errorf("tracking updated but failed to publish event: %w", err)
	}
	return nil
}
