package service

import (
	"context"
	"errors"

	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/sequence"
	"retailpos/backend/internal/store"
)

var (
	ErrEmptyCart              = pricing.ErrEmptyCart
	ErrProductNotFound        = errors.New("product not found")
	ErrProductInactive        = errors.New("product inactive")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientPayment    = errors.New("cash received is less than total")
	ErrPersistenceFailed      = errors.New("persistence failed")
	ErrDuplicateInvoiceNumber = errors.New("invoice number already used")
	ErrAlreadyVoided          = errors.New("transaction already voided")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidRequest         = errors.New("invalid request")
)

// Error kinds are stable identifiers surfaced to API clients.
const (
	KindEmptyCart                = "EMPTY_CART"
	KindProductNotFound          = "PRODUCT_NOT_FOUND"
	KindProductInactive          = "PRODUCT_INACTIVE"
	KindInsufficientStock        = "INSUFFICIENT_STOCK"
	KindInsufficientPayment      = "INSUFFICIENT_PAYMENT"
	KindInvalidPricingPolicy     = "INVALID_PRICING_POLICY"
	KindInvalidLine              = "INVALID_LINE"
	KindSequenceAllocationFailed = "SEQUENCE_ALLOCATION_FAILED"
	KindPersistenceFailed        = "PERSISTENCE_FAILED"
	KindDuplicateInvoiceNumber   = "DUPLICATE_INVOICE_NUMBER"
	KindConflict                 = "CONFLICT"
	KindForbidden                = "FORBIDDEN"
	KindInvalidRequest           = "INVALID_REQUEST"
	KindNotFound                 = "NOT_FOUND"
	KindCanceled                 = "CANCELED"
	KindInternal                 = "INTERNAL"
)

// ErrorKind classifies err. Checks run from the most specific error to the
// most generic since service errors often wrap store errors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrProductInactive):
		return KindProductInactive
	case errors.Is(err, ErrInsufficientPayment):
		return KindInsufficientPayment
	case errors.Is(err, ErrDuplicateInvoiceNumber):
		return KindDuplicateInvoiceNumber
	case errors.Is(err, ErrAlreadyVoided):
		return KindConflict
	case errors.Is(err, pricing.ErrInvalidPricingPolicy):
		return KindInvalidPricingPolicy
	case errors.Is(err, pricing.ErrInvalidLine):
		return KindInvalidLine
	case errors.Is(err, sequence.ErrSequenceAllocationFailed):
		return KindSequenceAllocationFailed
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, store.ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrPersistenceFailed):
		return KindPersistenceFailed
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pricing.ErrInvalidPayment), errors.Is(err, store.ErrInvalidTransaction):
		return KindInvalidRequest
	case errors.Is(err, store.ErrDuplicate):
		return KindConflict
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
