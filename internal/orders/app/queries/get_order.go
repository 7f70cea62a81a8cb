package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// GetOrderQuery requests the full order aggregate for one of the caller's
// orders.
type GetOrderQuery struct {
	UserID  string
	OrderID string
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(q.OrderID) == "" {
		return errors.New("order id is required")
	}
	return nil
}

// GetOrderQueryHandler executes GetOrderQuery.
type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle retrieves the order graph, scoped to the requesting user.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.OrderGraph, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.repo.GetGraph(ctx, query.UserID, query.OrderID)
}
