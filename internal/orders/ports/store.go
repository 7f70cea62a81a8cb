package ports

import (
	"context"
	"time"

	"github.com/example/checkout/internal/orders/domain"
)

// TxStore opens a single atomic unit of work. The function either commits
// as a whole or every write inside it is rolled back.
type TxStore interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a unit of work.
//
// VariantsForUpdate, DiscountForUpdate, OrderForUpdate, and PaymentForUpdate
// take row-level locks so concurrent placements contending for the same
// stock or usage counters serialize instead of losing updates.
type Tx interface {
	// CartLines returns the user's cart in insertion order, joined with
	// variant data. An absent cart reads as an empty slice.
	CartLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	ClearCart(ctx context.Context, userID string) error

	// VariantsForUpdate locks and returns the named variants keyed by id.
	// Missing ids are simply absent from the result. Implementations must
	// lock rows in a deterministic order to avoid deadlocks.
	VariantsForUpdate(ctx context.Context, ids []string) (map[string]domain.Variant, error)
	DecrementStock(ctx context.Context, variantID string, qty int) error
	// RestoreStock adds each of the order's item quantities back onto its
	// variant. Used when an order is canceled.
	RestoreStock(ctx context.Context, orderID string) error

	// DiscountForUpdate locks and returns the discount with the given code,
	// or ErrNotFound.
	DiscountForUpdate(ctx context.Context, code string) (*domain.Discount, error)
	IncrementDiscountUsage(ctx context.Context, discountID string) error

	InsertOrder(ctx context.Context, order domain.Order) error
	InsertOrderItem(ctx context.Context, item domain.OrderItem) error
	InsertOrderDiscount(ctx context.Context, orderID, discountID string, amountCents int64) error
	InsertPayment(ctx context.Context, payment domain.Payment) error
	InsertShipping(ctx context.Context, shipping domain.Shipping) error

	OrderForUpdate(ctx context.Context, userID, orderID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error

	PaymentForUpdate(ctx context.Context, orderID string) (*domain.Payment, error)
	MarkPaymentPaid(ctx context.Context, orderID, transactionID string, at time.Time) error

	MarkShipped(ctx context.Context, orderID, trackingNumber string, at time.Time) error
}
