package domain

import (
	"time"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCanceled  OrderStatus = "canceled"
)

// statusTransitions is the only authority on legal status changes.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPaid, StatusCanceled},
	StatusPaid:      {StatusShipped, StatusCanceled},
	StatusShipped:   {StatusDelivered, StatusCanceled},
	StatusDelivered: {},
	StatusCanceled:  {},
}

// ParseOrderStatus converts a raw string into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(raw)
	_, ok := statusTransitions[status]
	return status, ok
}

// CanTransitionTo reports whether moving to next is a legal status change.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal indicates whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// Display returns the human-readable label for the status.
func (s OrderStatus) Display() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusPaid:
		return "Paid"
	case StatusShipped:
		return "Shipped"
	case StatusDelivered:
		return "Delivered"
	case StatusCanceled:
		return "Canceled"
	default:
		return string(s)
	}
}

// Order represents a purchase managed by the system. Totals are always
// derived from line items and applied discounts, never edited directly.
type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Status        OrderStatus `json:"status"`
	SubtotalCents int64       `json:"subtotal_cents"`
	DiscountCents int64       `json:"discount_cents"`
	TotalCents    int64       `json:"total_cents"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Transition validates and applies a status change.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return &InvalidStatusTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	return nil
}

// CanCancel reports whether the user-facing cancel operation applies.
// The status endpoint additionally allows canceling shipped orders.
func (o Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusPaid
}

// OrderItem is a single line of an order. PriceAtTimeCents is the variant's
// effective price snapshotted at placement and immutable afterward.
type OrderItem struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	VariantID        string `json:"variant_id"`
	Quantity         int    `json:"quantity"`
	PriceAtTimeCents int64  `json:"price_at_time_cents"`
}

// LineTotalCents is the snapshot price multiplied by quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.PriceAtTimeCents * int64(i.Quantity)
}

// PaymentMethod enumerates the supported ways to pay for an order.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentPayPal PaymentMethod = "paypal"
	PaymentStripe PaymentMethod = "stripe"
)

// ParsePaymentMethod validates a raw payment method string.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case PaymentCash, PaymentCard, PaymentPayPal, PaymentStripe:
		return PaymentMethod(raw), nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// PaymentStatus tracks the state of a payment. Transitions only move
// pending->paid or pending->failed, never back.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is the one-to-one payment record for an order. AmountCents equals
// the order total at creation time.
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	AmountCents   int64         `json:"amount_cents"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

// ShippingStatus tracks fulfilment of an order's shipment.
type ShippingStatus string

const (
	ShippingPending    ShippingStatus = "pending"
	ShippingProcessing ShippingStatus = "processing"
	ShippingShipped    ShippingStatus = "shipped"
	ShippingDelivered  ShippingStatus = "delivered"
)

// Shipping is the one-to-one shipment record for an order.
type Shipping struct {
	ID             string         `json:"id"`
	OrderID        string         `json:"order_id"`
	Address        string         `json:"address"`
	Method         string         `json:"method"`
	Status         ShippingStatus `json:"status"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// Variant is the purchasable unit of stock exposed by the catalog.
type Variant struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ListPriceCents     int64  `json:"list_price_cents"`
	DiscountPriceCents *int64 `json:"discount_price_cents,omitempty"`
	StockQty           int    `json:"stock_qty"`
}

// EffectivePriceCents is the discount price when set and lower than the
// list price, otherwise the list price.
func (v Variant) EffectivePriceCents() int64 {
	if v.DiscountPriceCents != nil && *v.DiscountPriceCents < v.ListPriceCents {
		return *v.DiscountPriceCents
	}
	return v.ListPriceCents
}

// CartLine is one entry of a shopper's cart paired with its variant.
type CartLine struct {
	Variant  Variant
	Quantity int
}

// OrderItemDetail pairs an order item with the variant it references.
type OrderItemDetail struct {
	OrderItem
	Variant Variant `json:"variant"`
}

// AppliedDiscount records a discount applied to an order together with the
// amount it saved, snapshotted against the order's pre-discount subtotal.
type AppliedDiscount struct {
	Discount    Discount `json:"discount"`
	AmountCents int64    `json:"amount_cents"`
}

// OrderGraph is the full order aggregate: the order row plus everything
// whose lifetime is bound to it.
type OrderGraph struct {
	Order     Order
	Items     []OrderItemDetail
	Payment   Payment
	Shipping  Shipping
	Discounts []AppliedDiscount
}
