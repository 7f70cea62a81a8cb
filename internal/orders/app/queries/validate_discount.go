package queries

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// ValidateDiscountQuery previews whether a code would be accepted by a
// placement right now. It never touches the usage counter.
type ValidateDiscountQuery struct {
	Code string
}

// DiscountValidation is the preview result. Discount is set only for valid
// codes.
type DiscountValidation struct {
	Valid    bool             `json:"valid"`
	Reason   string           `json:"reason,omitempty"`
	Discount *domain.Discount `json:"discount,omitempty"`
}

type ValidateDiscountQueryHandler struct {
	repo ports.OrderRepository
}

func NewValidateDiscountQueryHandler(repo ports.OrderRepository) *ValidateDiscountQueryHandler {
	return &ValidateDiscountQueryHandler{repo: repo}
}

func (h *ValidateDiscountQueryHandler) Handle(ctx context.Context, query ValidateDiscountQuery) (*DiscountValidation, error) {
	code := strings.TrimSpace(query.Code)
	if code == "" {
		return nil, errors.New("code is required")
	}

	discount, err := h.repo.DiscountByCode(ctx, code)
	if errors.Is(err, ports.ErrNotFound) {
		return &DiscountValidation{Valid: false, Reason: domain.DiscountNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := discount.CheckUsable(time.Now().UTC()); err != nil {
		var discountErr *domain.InvalidDiscountError
		if errors.As(err, &discountErr) {
			return &DiscountValidation{Valid: false, Reason: discountErr.Reason}, nil
		}
		return nil, err
	}

	return &DiscountValidation{Valid: true, Discount: discount}, nil
}
