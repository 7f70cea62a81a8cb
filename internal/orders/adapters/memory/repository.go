package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

type cartEntry struct {
	variantID string
	quantity  int
}

type orderDiscount struct {
	discountID  string
	amountCents int64
}

type state struct {
	variants       map[string]domain.Variant
	carts          map[string][]cartEntry
	orders         map[string]domain.Order
	items          map[string][]domain.OrderItem
	payments       map[string]domain.Payment
	shipments      map[string]domain.Shipping
	discounts      map[string]domain.Discount
	discountByCode map[string]string
	orderDiscounts map[string][]orderDiscount
}

func newState() *state {
	return &state{
		variants:       make(map[string]domain.Variant),
		carts:          make(map[string][]cartEntry),
		orders:         make(map[string]domain.Order),
		items:          make(map[string][]domain.OrderItem),
		payments:       make(map[string]domain.Payment),
		shipments:      make(map[string]domain.Shipping),
		discounts:      make(map[string]domain.Discount),
		discountByCode: make(map[string]string),
		orderDiscounts: make(map[string][]orderDiscount),
	}
}

func (s *state) clone() *state {
	next := newState()
	for k, v := range s.variants {
		next.variants[k] = v
	}
	for k, v := range s.carts {
		next.carts[k] = append([]cartEntry(nil), v...)
	}
	for k, v := range s.orders {
		next.orders[k] = v
	}
	for k, v := range s.items {
		next.items[k] = append([]domain.OrderItem(nil), v...)
	}
	for k, v := range s.payments {
		next.payments[k] = v
	}
	for k, v := range s.shipments {
		next.shipments[k] = v
	}
	for k, v := range s.discounts {
		next.discounts[k] = v
	}
	for k, v := range s.discountByCode {
		next.discountByCode[k] = v
	}
	for k, v := range s.orderDiscounts {
		next.orderDiscounts[k] = append([]orderDiscount(nil), v...)
	}
	return next
}

// Store is an in-memory implementation of the order storage ports, useful
// for local development and tests. Transactions run against a copy of the
// state that only replaces the live state on success, so a failed unit of
// work leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a snapshot; the snapshot becomes the live state only
// when fn succeeds. The store mutex serializes concurrent transactions.
func (s *Store) InTx(_ context.Context, fn func(tx ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// SeedVariant inserts or replaces a catalog variant.
func (s *Store) SeedVariant(v domain.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.variants[v.ID] = v
}

// SeedDiscount inserts or replaces a discount.
func (s *Store) SeedDiscount(d domain.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.discounts[d.ID] = d
	s.state.discountByCode[d.Code] = d.ID
}

// AddCartItem appends a line to the user's cart.
func (s *Store) AddCartItem(userID, variantID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.carts[userID] = append(s.state.carts[userID], cartEntry{variantID: variantID, quantity: quantity})
}

// MarkPaymentFailed flips an order's payment to failed, standing in for a
// gateway rejection.
func (s *Store) MarkPaymentFailed(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[orderID]
	if !ok {
		return
	}
	p.Status = domain.PaymentFailed
	s.state.payments[orderID] = p
}

// Variant returns the current variant row, for test assertions.
func (s *Store) Variant(id string) (domain.Variant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.variants[id]
	return v, ok
}

// Discount returns the current discount row by code, for test assertions.
func (s *Store) Discount(code string) (domain.Discount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.discountByCode[code]
	if !ok {
		return domain.Discount{}, false
	}
	d, ok := s.state.discounts[id]
	return d, ok
}

// CartSize returns the number of lines in the user's cart.
func (s *Store) CartSize(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.carts[userID])
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.orders)
}

// GetGraph loads the full order aggregate scoped to its owner.
func (s *Store) GetGraph(_ context.Context, userID, orderID string) (*domain.OrderGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.state.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, ports.ErrNotFound
	}

	graph := &domain.OrderGraph{Order: order}
	for _, item := range s.state.items[orderID] {
		graph.Items = append(graph.Items, domain.OrderItemDetail{
			OrderItem: item,
			Variant:   s.state.variants[item.VariantID],
		})
	}
	graph.Payment = s.state.payments[orderID]
	graph.Shipping = s.state.shipments[orderID]
	for _, od := range s.state.orderDiscounts[orderID] {
		graph.Discounts = append(graph.Discounts, domain.AppliedDiscount{
			Discount:    s.state.discounts[od.discountID],
			AmountCents: od.amountCents,
		})
	}
	return graph, nil
}

// List returns the user's order summaries, newest first. Pagination is
// 1-based.
func (s *Store) List(_ context.Context, userID string, filter ports.ListFilter) ([]ports.OrderSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ports.OrderSummary
	for _, order := range s.state.orders {
		if order.UserID != userID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, ports.OrderSummary{
			Order:     order,
			ItemCount: len(s.state.items[order.ID]),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

// DiscountByCode returns a discount without locking, for validation previews.
func (s *Store) DiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.discountByCode[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	d := s.state.discounts[id]
	return &d, nil
}

// ReadStats aggregates order and stock statistics across the store.
func (s *Store) ReadStats(_ context.Context) (*ports.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.StoreStats{GeneratedAt: time.Now().UTC()}
	for _, order := range s.state.orders {
		stats.Orders.Total++
		switch order.Status {
		case domain.StatusPending:
			stats.Orders.Pending++
		case domain.StatusDelivered:
			stats.Orders.Delivered++
			stats.Orders.RevenueCents += order.TotalCents
		}
	}
	for _, variant := range s.state.variants {
		if variant.StockQty > 0 {
			stats.Variants.InStock++
		} else {
			stats.Variants.OutOfStock++
		}
	}
	return stats, nil
}

// memTx implements ports.Tx over a working copy of the state. The copy is
// private to one transaction, so no further locking is needed.
type memTx struct {
	state *state
}

func (t *memTx) CartLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	for _, entry := range t.state.carts[userID] {
		lines = append(lines, domain.CartLine{
			Variant:  t.state.variants[entry.variantID],
			Quantity: entry.quantity,
		})
	}
	return lines, nil
}

func (t *memTx) ClearCart(_ context.Context, userID string) error {
	delete(t.state.carts, userID)
	return nil
}

func (t *memTx) VariantsForUpdate(_ context.Context, ids []string) (map[string]domain.Variant, error) {
	found := make(map[string]domain.Variant, len(ids))
	for _, id := range ids {
		if v, ok := t.state.variants[id]; ok {
			found[id] = v
		}
	}
	return found, nil
}

func (t *memTx) DecrementStock(_ context.Context, variantID string, qty int) error {
	v, ok := t.state.variants[variantID]
	if !ok {
		return ports.ErrNotFound
	}
	v.StockQty -= qty
	t.state.variants[variantID] = v
	return nil
}

func (t *memTx) RestoreStock(_ context.Context, orderID string) error {
	for _, item := range t.state.items[orderID] {
		v, ok := t.state.variants[item.VariantID]
		if !ok {
			continue
		}
		v.StockQty += item.Quantity
		t.state.variants[item.VariantID] = v
	}
	return nil
}

func (t *memTx) DiscountForUpdate(_ context.Context, code string) (*domain.Discount, error) {
	id, ok := t.state.discountByCode[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	d := t.state.discounts[id]
	return &d, nil
}

func (t *memTx) IncrementDiscountUsage(_ context.Context, discountID string) error {
	d, ok := t.state.discounts[discountID]
	if !ok {
		return ports.ErrNotFound
	}
	d.TimesUsed++
	t.state.discounts[discountID] = d
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	t.state.orders[order.ID] = order
	return nil
}

func (t *memTx) InsertOrderItem(_ context.Context, item domain.OrderItem) error {
	t.state.items[item.OrderID] = append(t.state.items[item.OrderID], item)
	return nil
}

func (t *memTx) InsertOrderDiscount(_ context.Context, orderID, discountID string, amountCents int64) error {
	for _, existing := range t.state.orderDiscounts[orderID] {
		if existing.discountID == discountID {
			return nil
		}
	}
	t.state.orderDiscounts[orderID] = append(t.state.orderDiscounts[orderID], orderDiscount{
		discountID:  discountID,
		amountCents: amountCents,
	})
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, payment domain.Payment) error {
	t.state.payments[payment.OrderID] = payment
	return nil
}

func (t *memTx) InsertShipping(_ context.Context, shipping domain.Shipping) error {
	t.state.shipments[shipping.OrderID] = shipping
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, userID, orderID string) (*domain.Order, error) {
	order, ok := t.state.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, ports.ErrNotFound
	}
	return &order, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	order, ok := t.state.orders[orderID]
	if !ok {
		return ports.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	t.state.orders[orderID] = order
	return nil
}

func (t *memTx) PaymentForUpdate(_ context.Context, orderID string) (*domain.Payment, error) {
	payment, ok := t.state.payments[orderID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &payment, nil
}

func (t *memTx) MarkPaymentPaid(_ context.Context, orderID, transactionID string, at time.Time) error {
	payment, ok := t.state.payments[orderID]
	if !ok {
		return ports.ErrNotFound
	}
	payment.Status = domain.PaymentPaid
	payment.TransactionID = transactionID
	payment.PaidAt = &at
	t.state.payments[orderID] = payment
	return nil
}

func (t *memTx) MarkShipped(_ context.Context, orderID, trackingNumber string, at time.Time) error {
	shipping, ok := t.state.shipments[orderID]
	if !ok {
		return ports.ErrNotFound
	}
	shipping.Status = domain.ShippingShipped
	shipping.TrackingNumber = trackingNumber
	shipping.ShippedAt = &at
	t.state.shipments[orderID] = shipping
	return nil
}
