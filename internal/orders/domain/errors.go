package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart is returned when a cart-based placement finds no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNoItems is returned when an explicit item list is empty.
	ErrNoItems = errors.New("no items to order")
	// ErrAlreadyConfirmed is returned when confirming a paid payment again.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
	// ErrInvalidPaymentMethod is returned for unknown payment methods.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrShortAddress is returned when the shipping address is too short.
	ErrShortAddress = errors.New("shipping address must be at least 10 characters")
	// ErrTrackingRequired is returned when a tracking update has no number.
	ErrTrackingRequired = errors.New("tracking number is required")
	// ErrTransactionRequired is returned when a payment confirmation carries
	// no gateway transaction reference.
	ErrTransactionRequired = errors.New("transaction_id is required")
	// ErrPaymentNotPending is returned when confirming a payment that has
	// already left the pending state. Settled payments are never reversed.
	ErrPaymentNotPending = errors.New("payment is not pending")
)

// ValidationError marks client-supplied input rejected before any state
// change. The HTTP layer reports it as a client fault, unlike unexpected
// errors.
type ValidationError struct {
	msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.msg }

// InsufficientStockError fails a placement when a variant cannot cover the
// requested quantity. It carries both sides of the comparison.
type InsufficientStockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: %d available, %d requested",
		e.VariantID, e.Available, e.Requested)
}

// Discount rejection reasons carried by InvalidDiscountError.
const (
	DiscountNotFound     = "not found"
	DiscountInactive     = "inactive"
	DiscountNotYetActive = "not yet active"
	DiscountExpired      = "expired"
	DiscountExhausted    = "usage limit reached"
)

// InvalidDiscountError names the offending code and why it was rejected.
// Any invalid code fails the whole placement; partial application is not
// permitted.
type InvalidDiscountError struct {
	Code   string
	Reason string
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount code %q is not valid: %s", e.Code, e.Reason)
}

// InvalidStatusTransitionError rejects a status change not present in the
// transition table.
type InvalidStatusTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %q to %q", e.From, e.To)
}
