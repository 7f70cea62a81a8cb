package ports

import (
	"context"
	"errors"

	"github.com/example/checkout/internal/orders/domain"
)

// OrderRepository exposes the read side required by the application layer.
// All lookups are scoped to the owning user.
type OrderRepository interface {
	GetGraph(ctx context.Context, userID, orderID string) (*domain.OrderGraph, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]OrderSummary, error)
	DiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
}

// OrderSummary is the listing shape: the order plus its line count.
type OrderSummary struct {
	domain.Order
	ItemCount int `json:"item_count"`
}

// ListFilter narrows list queries by status and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
