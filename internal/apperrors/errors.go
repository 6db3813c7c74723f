package apperrors

import (
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// Kind is the machine-readable class of a failure
type Kind string

const (
	KindValidation        Kind = "validation"
	KindDiscountRejected  Kind = "discount_rejected"
	KindInsufficientStock Kind = "insufficient_stock"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPersistence       Kind = "persistence"
)

// Error is returned by the checkout pipeline for every failure a caller
// needs to tell apart.
type Error struct {
	Kind    Kind
	Message string

	// Reason is set for discount rejections.
	Reason string
	// VariantID is set for insufficient stock.
	VariantID int64
	Pool      models.InventoryPool

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or unknown input
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// DiscountRejected reports a discount code that cannot be applied
func DiscountRejected(reason, message string) *Error {
	return &Error{Kind: KindDiscountRejected, Reason: reason, Message: message}
}

// InsufficientStock reports a failed reservation
func InsufficientStock(variantID int64, pool models.InventoryPool) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for variant %d in %s pool", variantID, pool),
		VariantID: variantID,
		Pool:      pool,
	}
}

// NotFound reports a missing entity
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a request that clashes with one still being processed
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindPersistence for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

// Is reports whether err carries kind k
func Is(err error, k Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == k
}

// IsClientError reports whether the caller can fix err by changing input.
// Discount rejections are a sub-kind of validation.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindDiscountRejected, KindInsufficientStock, KindNotFound, KindConflict:
		return true
	}
	return false
}
