package repositories

import (
	"fmt"
	"strings"
)

// OrderErrorCode enumerates failure reasons for order persistence operations.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorInvalidInput indicates the caller supplied invalid arguments.
	OrderErrorInvalidInput OrderErrorCode = "order_invalid_input"
	// OrderErrorInsufficientStock indicates one or more listings could not
	// cover the requested quantity during checkout.
	OrderErrorInsufficientStock OrderErrorCode = "order_insufficient_stock"
	// OrderErrorIllegalTransition indicates the requested status change is not
	// permitted from the current state.
	OrderErrorIllegalTransition OrderErrorCode = "order_illegal_transition"
	// OrderErrorCartChanged indicates the cart was modified between the
	// checkout snapshot and the transactional write.
	OrderErrorCartChanged OrderErrorCode = "order_cart_changed"
)

// OrderError wraps order-specific persistence failures with machine readable codes.
type OrderError struct {
	Code       OrderErrorCode
	Message    string
	ProductIDs []string
	Err        error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.ProductIDs) > 0 {
		return fmt.Sprintf("%s (products: %s)", e.Message, strings.Join(e.ProductIDs, ", "))
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConflict satisfies the RepositoryError contract for conflict-class codes.
func (e *OrderError) IsConflict() bool {
	if e == nil {
		return false
	}
	return e.Code == OrderErrorInsufficientStock || e.Code == OrderErrorIllegalTransition || e.Code == OrderErrorCartChanged
}

// IsNotFound satisfies the RepositoryError contract.
func (e *OrderError) IsNotFound() bool { return false }

// IsUnavailable satisfies the RepositoryError contract.
func (e *OrderError) IsUnavailable() bool { return false }

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports the listings that could not satisfy checkout.
func NewInsufficientStockError(productIDs []string) *OrderError {
	return &OrderError{
		Code:       OrderErrorInsufficientStock,
		Message:    "insufficient stock for requested quantities",
		ProductIDs: append([]string(nil), productIDs...),
	}
}
