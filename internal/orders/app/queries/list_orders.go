package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/example/checkout/internal/orders/ports"
)

// ListOrdersQuery returns the caller's orders, newest first.
type ListOrdersQuery struct {
	UserID string
	Filter ports.ListFilter
}

func (q ListOrdersQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]ports.OrderSummary, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.repo.List(ctx, query.UserID, query.Filter)
}
