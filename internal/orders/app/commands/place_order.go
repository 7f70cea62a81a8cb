package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
	"github.com/google/uuid"
)

// ItemInput is one explicitly supplied order line, used when the caller
// bypasses the cart.
type ItemInput struct {
	VariantID string
	Quantity  int
}

// PlaceOrderCommand carries everything needed to place an order. Identity
// is explicit; there is no ambient current user.
type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress string
	ShippingMethod  string
	PaymentMethod   string
	DiscountCodes   []string
	UseCart         bool
	Items           []ItemInput
}

func (c PlaceOrderCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user id is required")
	}
	if len(strings.TrimSpace(c.ShippingAddress)) < 10 {
		return domain.ErrShortAddress
	}
	if strings.TrimSpace(c.ShippingMethod) == "" {
		return domain.NewValidationError("shipping_method is required")
	}
	if _, err := domain.ParsePaymentMethod(c.PaymentMethod); err != nil {
		return err
	}
	if !c.UseCart {
		if len(c.Items) == 0 {
			return domain.ErrNoItems
		}
		for _, item := range c.Items {
			if strings.TrimSpace(item.VariantID) == "" {
				return domain.NewValidationError("variant_id is required")
			}
			if item.Quantity < 1 {
				return domain.NewValidationError("quantity must be at least 1")
			}
		}
	}
	return nil
}

// PlaceOrderHandler is implemented by the core handler and its observable
// wrapper.
type PlaceOrderHandler interface {
	Handle(ctx context.Context, cmd PlaceOrderCommand) (*domain.OrderGraph, error)
}

// PlaceOrderCommandHandler runs the whole placement as one unit of work:
// stock re-check, stock decrement, order graph creation, discount usage,
// and cart clearing commit together or not at all.
type PlaceOrderCommandHandler struct {
	store  ports.TxStore
	events ports.EventBus
}

func NewPlaceOrderCommandHandler(store ports.TxStore, events ports.EventBus) *PlaceOrderCommandHandler {
	return &PlaceOrderCommandHandler{store: store, events: events}
}

func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*domain.OrderGraph, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var graph *domain.OrderGraph
	err := h.store.InTx(ctx, func(tx ports.Tx) error {
		now := time.Now().UTC()

		lines, err := resolveLines(ctx, tx, cmd)
		if err != nil {
			return err
		}

		discounts, err := resolveDiscounts(ctx, tx, cmd.DiscountCodes, now)
		if err != nil {
			return err
		}

		quote := domain.PriceOrder(lines, discounts)

		order := domain.Order{
			ID:            uuid.NewString(),
			UserID:        cmd.UserID,
			Status:        domain.StatusPending,
			SubtotalCents: quote.SubtotalCents,
			DiscountCents: quote.DiscountCents,
			TotalCents:    quote.TotalCents,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		items := make([]domain.OrderItemDetail, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			item := domain.OrderItem{
				ID:               uuid.NewString(),
				OrderID:          order.ID,
				VariantID:        line.Variant.ID,
				Quantity:         line.Quantity,
				PriceAtTimeCents: line.PriceAtTimeCents,
			}
			if err := tx.InsertOrderItem(ctx, item); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, line.Variant.ID, line.Quantity); err != nil {
				return err
			}
			variant := line.Variant
			variant.StockQty -= line.Quantity
			items = append(items, domain.OrderItemDetail{OrderItem: item, Variant: variant})
		}

		for _, applied := range quote.Discounts {
			if err := tx.InsertOrderDiscount(ctx, order.ID, applied.Discount.ID, applied.AmountCents); err != nil {
				return err
			}
			if err := tx.IncrementDiscountUsage(ctx, applied.Discount.ID); err != nil {
				return err
			}
		}

		payment := domain.Payment{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Method:      domain.PaymentMethod(cmd.PaymentMethod),
			Status:      domain.PaymentPending,
			AmountCents: quote.TotalCents,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		shipping := domain.Shipping{
			ID:      uuid.NewString(),
			OrderID: order.ID,
			Address: strings.TrimSpace(cmd.ShippingAddress),
			Method:  cmd.ShippingMethod,
			Status:  domain.ShippingPending,
		}
		if err := tx.InsertShipping(ctx, shipping); err != nil {
			return err
		}

		if cmd.UseCart {
			if err := tx.ClearCart(ctx, cmd.UserID); err != nil {
				return err
			}
		}

		graph = &domain.OrderGraph{
			Order:     order,
			Items:     items,
			Payment:   payment,
			Shipping:  shipping,
			Discounts: quote.Discounts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderPlaced(ctx, graph.Order.ID); err != nil {
		return graph, fmt.Errorf("order placed but failed to publish event: %w", err)
	}

	return graph, nil
}

// resolveLines produces the priced-to-be lines for the placement. Stock is
// re-read under row locks here, inside the same transaction that later
// decrements it, closing the race between validation and commit.
func resolveLines(ctx context.Context, tx ports.Tx, cmd PlaceOrderCommand) ([]domain.CartLine, error) {
	type request struct {
		variantID string
		quantity  int
	}

	var requests []request
	if cmd.UseCart {
		cartLines, err := tx.CartLines(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}
		if len(cartLines) == 0 {
			return nil, domain.ErrEmptyCart
		}
		for _, line := range cartLines {
			requests = append(requests, request{variantID: line.Variant.ID, quantity: line.Quantity})
		}
	} else {
		// Duplicate variant ids in an explicit list collapse into one line.
		index := make(map[string]int)
		for _, item := range cmd.Items {
			if at, ok := index[item.VariantID]; ok {
				requests[at].quantity += item.Quantity
				continue
			}
			index[item.VariantID] = len(requests)
			requests = append(requests, request{variantID: item.VariantID, quantity: item.Quantity})
		}
	}

	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.variantID)
	}
	sort.Strings(ids)

	variants, err := tx.VariantsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(requests))
	for _, req := range requests {
		variant, ok := variants[req.variantID]
		if !ok {
			return nil, fmt.Errorf("variant %s: %w", req.variantID, ports.ErrNotFound)
		}
		if variant.StockQty < req.quantity {
			return nil, &domain.InsufficientStockError{
				VariantID: variant.ID,
				Available: variant.StockQty,
				Requested: req.quantity,
			}
		}
		lines = append(lines, domain.CartLine{Variant: variant, Quantity: req.quantity})
	}
	return lines, nil
}

// resolveDiscounts validates every submitted code under row locks. Any
// invalid code fails the whole placement; the same code submitted twice is
// applied once.
func resolveDiscounts(ctx context.Context, tx ports.Tx, codes []string, now time.Time) ([]domain.Discount, error) {
	seen := make(map[string]struct{}, len(codes))
	var discounts []domain.Discount

	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		discount, err := tx.DiscountForUpdate(ctx, code)
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &domain.InvalidDiscountError{Code: code, Reason: domain.DiscountNotFound}
		}
		if err != nil {
			return nil, err
		}
		if err := discount.CheckUsable(now); err != nil {
			return nil, err
		}
		discounts = append(discounts, *discount)
	}
	return discounts, nil
}
