package utils

import "errors"

// Sentinel errors returned by the workflow core. Operations wrap these with
// fmt.Errorf("...: %w", Err...) so the transport layer can map them to
// stable status codes with errors.Is.
var (
	ErrorRecordNotFound = errors.New("record not found")

	ErrInvalidStateTransition    = errors.New("operation not allowed in current status")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrPaymentExceedsDue         = errors.New("payment exceeds amount due")
	ErrRefundExceedsRemaining    = errors.New("refund exceeds remaining refundable amount")
	ErrOverReceipt               = errors.New("received quantity exceeds ordered quantity")
	ErrCircularCategoryReference = errors.New("circular category reference")
	ErrCrossBranchReference      = errors.New("reference crosses branches")
	ErrDuplicateKey              = errors.New("duplicate key")
	ErrCurrencyNotFound          = errors.New("currency not found")
	ErrAmbiguousOrMissingSource  = errors.New("exactly one source transaction must be referenced")
	ErrMissingRejectionReason    = errors.New("rejection reason is required")
	ErrReturnWindowExpired       = errors.New("return window expired")
	ErrShiftNotOpen              = errors.New("cash drawer shift is not open")
	ErrZeroBudget                = errors.New("budget amount is zero")
	ErrConflict                  = errors.New("concurrent modification, retries exhausted")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
