package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// ConfirmPaymentCommand records a gateway-verified payment against an
// order. TransactionID must be the gateway's reference; there is no
// placeholder fallback.
type ConfirmPaymentCommand struct {
	UserID        string
	OrderID       string
	TransactionID string
}

func (c ConfirmPaymentCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user id is required")
	}
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError("order id is required")
	}
	if strings.TrimSpace(c.TransactionID) == "" {
		return domain.ErrTransactionRequired
	}
	return nil
}

// ConfirmPaymentCommandHandler marks the payment paid and cascades the
// order status to paid in one unit of work.
type ConfirmPaymentCommandHandler struct {
	store  ports.TxStore
	events ports.EventBus
}

func NewConfirmPaymentCommandHandler(store ports.TxStore, events ports.EventBus) *ConfirmPaymentCommandHandler {
	return &ConfirmPaymentCommandHandler{store: store, events: events}
}

func (h *ConfirmPaymentCommandHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*domain.Payment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var confirmed *domain.Payment
	err := h.store.InTx(ctx, func(tx ports.Tx) error {
		order, err := tx.OrderForUpdate(ctx, cmd.UserID, cmd.OrderID)
		if err != nil {
			return err
		}

		payment, err := tx.PaymentForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentPaid {
			return domain.ErrAlreadyConfirmed
		}
		// A failed payment stays failed; settled states are never reversed.
		if payment.Status != domain.PaymentPending {
			return domain.ErrPaymentNotPending
		}

		if err := order.Transition(domain.StatusPaid); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.MarkPaymentPaid(ctx, order.ID, strings.TrimSpace(cmd.TransactionID), now); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, domain.StatusPaid, now); err != nil {
			return err
		}

		payment.Status = domain.PaymentPaid
		payment.TransactionID = strings.TrimSpace(cmd.TransactionID)
		payment.PaidAt = &now
		confirmed = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderPaid(ctx, cmd.OrderID); err != nil {
		return confirmed, fmt.Errorf("payment confirmed but failed to publish event: %w", err)
	}
	return confirmed, nil
}
