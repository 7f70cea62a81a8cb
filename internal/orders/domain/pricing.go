package domain

import (
	"github.com/shopspring/decimal"
)

// PricedLine is one order line after pricing: the snapshot price and the
// resulting line total.
type PricedLine struct {
	Variant          Variant
	Quantity         int
	PriceAtTimeCents int64
	LineTotalCents   int64
}

// Quote is the result of pricing a set of cart lines against zero or more
// discounts. TotalCents is floored at zero.
type Quote struct {
	Lines         []PricedLine
	Discounts     []AppliedDiscount
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
}

// PriceOrder computes line totals, the subtotal, and the discount total for
// a placement. Each discount amount is computed against the pre-discount
// subtotal; amounts stack additively and the grand total floors at zero.
// Callers are responsible for having validated the discounts first.
func PriceOrder(lines []CartLine, discounts []Discount) Quote {
	quote := Quote{Lines: make([]PricedLine, 0, len(lines))}

	for _, line := range lines {
		price := line.Variant.EffectivePriceCents()
		total := price * int64(line.Quantity)
		quote.Lines = append(quote.Lines, PricedLine{
			Variant:          line.Variant,
			Quantity:         line.Quantity,
			PriceAtTimeCents: price,
			LineTotalCents:   total,
		})
		quote.SubtotalCents += total
	}

	for _, d := range discounts {
		off := d.AmountOffCents(quote.SubtotalCents)
		quote.Discounts = append(quote.Discounts, AppliedDiscount{Discount: d, AmountCents: off})
		quote.DiscountCents += off
	}

	quote.TotalCents = quote.SubtotalCents - quote.DiscountCents
	if quote.TotalCents < 0 {
		quote.TotalCents = 0
	}
	return quote
}

// FormatCents renders an amount of cents as a decimal currency string,
// e.g. 4950 -> "49.50".
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
