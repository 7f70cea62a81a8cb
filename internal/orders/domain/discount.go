package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType distinguishes percentage discounts from fixed amounts.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount is a shared, code-addressed reduction applied to orders.
// Amount is cents for fixed discounts and whole percent for percentage
// discounts.
type Discount struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Description string       `json:"description,omitempty"`
	Type        DiscountType `json:"type"`
	Amount      int64        `json:"amount"`
	ValidFrom   time.Time    `json:"valid_from"`
	ValidTo     time.Time    `json:"valid_to"`
	UsageLimit  *int         `json:"usage_limit,omitempty"`
	TimesUsed   int          `json:"times_used"`
	Active      bool         `json:"is_active"`
}

// CheckUsable validates the discount against the checks a placement runs:
// active flag, validity window, and usage limit. A nil return means the
// discount may be applied at the given instant.
func (d Discount) CheckUsable(now time.Time) error {
	if !d.Active {
		return &InvalidDiscountError{Code: d.Code, Reason: DiscountInactive}
	}
	if now.Before(d.ValidFrom) {
		return &InvalidDiscountError{Code: d.Code, Reason: DiscountNotYetActive}
	}
	if now.After(d.ValidTo) {
		return &InvalidDiscountError{Code: d.Code, Reason: DiscountExpired}
	}
	if d.UsageLimit != nil && d.TimesUsed >= *d.UsageLimit {
		return &InvalidDiscountError{Code: d.Code, Reason: DiscountExhausted}
	}
	return nil
}

// AmountOffCents computes how much the discount takes off a pre-discount
// subtotal. Percentage discounts are computed with decimal arithmetic and
// rounded to whole cents; fixed discounts never exceed the subtotal.
func (d Discount) AmountOffCents(subtotalCents int64) int64 {
	switch d.Type {
	case DiscountPercent:
		return decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(d.Amount)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	default:
		if d.Amount > subtotalCents {
			return subtotalCents
		}
		return d.Amount
	}
}
