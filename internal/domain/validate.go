package domain

import (
	"fmt"
	"strings"
)

// ValidationError is caller-fixable and rejected before the saga starts, so
// no compensation is ever needed for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ValidateOrder checks an order before saga entry. Pure function, no I/O.
func ValidateOrder(o Order) error {
	if strings.TrimSpace(string(o.UserID)) == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if len(o.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for idx, it := range o.Items {
		if strings.TrimSpace(string(it.ProductID)) == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].product_id", idx), Reason: "is required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", idx), Reason: "must be > 0"}
		}
		if it.UnitPrice < 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unit_price", idx), Reason: "must be >= 0"}
		}
	}
	if o.TotalAmount < 0 {
		return &ValidationError{Field: "total_amount", Reason: "must be >= 0"}
	}
	if o.TotalAmount != o.ComputeTotal() {
		return &ValidationError{Field: "total_amount", Reason: "does not match item totals"}
	}
	if strings.TrimSpace(o.Currency) == "" {
		return &ValidationError{Field: "currency", Reason: "is required"}
	}
	return nil
}
