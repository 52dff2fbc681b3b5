package domain

import "errors"

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
)

type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func validation(msg string) *Error { return &Error{Kind: ErrValidation, Message: msg} }
func conflict(msg string) *Error   { return &Error{Kind: ErrConflict, Message: msg} }
func notFound(msg string) *Error   { return &Error{Kind: ErrNotFound, Message: msg} }

var (
	ErrInvalidTemplateID    = validation("template_id must be a positive integer")
	ErrTemplateInactive     = validation("template is not available for purchase")
	ErrInvalidPaymentMethod = validation("payment_method must be one of telegram, crypto_btc, crypto_eth, crypto_usdt")
	ErrInvalidPaymentStatus = validation("unknown payment status")
	ErrInvalidRating        = validation("rating must be between 1 and 5")

	ErrTemplateNotFound = notFound("template not found")
	ErrCategoryNotFound = notFound("category not found")
	ErrOrderNotFound    = notFound("order not found")
	ErrPaymentNotFound  = notFound("payment not found")
	ErrDownloadNotFound = notFound("download link not found")

	ErrInvalidTransition   = conflict("invalid status transition")
	ErrAlreadyOwned        = conflict("you already own this template")
	ErrPurchaseInProgress  = conflict("another order for this template is already being paid")
	ErrOrderNotCancellable = conflict("only orders awaiting payment can be cancelled")
	ErrOrderNotPayable     = conflict("order is not awaiting payment")
	ErrPaymentExists       = conflict("payment already exists for this order")
	ErrOrderNotCompleted   = conflict("order must be completed before downloading")
	ErrDownloadLimit       = conflict("download limit exceeded")
	ErrAlreadyReviewed     = conflict("you have already reviewed this template")
	ErrDemoUnavailable     = conflict("demo is not available for this template")
)
