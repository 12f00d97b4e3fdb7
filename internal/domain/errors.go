package domain

import "errors"

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventStarted        = errors.New("event already started")
	ErrStockExhausted      = errors.New("not enough stock remaining")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrHoldActive          = errors.New("an active hold already exists for this event; resume or wait")
	ErrHoldExpired         = errors.New("hold expired")
	ErrNotPendingPayment   = errors.New("reservation is not awaiting payment")
	ErrSelfPurchase        = errors.New("organizer cannot buy own event")
	ErrForbidden           = errors.New("forbidden")

	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentInProgress    = errors.New("a payment attempt is already in progress")
	ErrNotAuthorized        = errors.New("payment is not authorized")
	ErrAuthorizationExpired = errors.New("authorization window has passed")
	ErrCaptureInProgress    = errors.New("capture already in progress")

	ErrFulfillmentNotFound = errors.New("fulfillment record not found")
	ErrUploadClosed        = errors.New("upload window is closed")
	ErrNotUploaded         = errors.New("ticket proof has not been uploaded")
	ErrNotApproved         = errors.New("ticket has not been approved")

	// ErrVersionConflict signals an optimistic-lock mismatch; services retry
	// a bounded number of times before surfacing ErrConflict.
	ErrVersionConflict = errors.New("version conflict")
	ErrConflict        = errors.New("conflicting concurrent update")
)

// ProcessorError is the core's translation of an external processor failure.
// Callers never see raw processor codes; Retryable tells the buyer whether a
// fresh attempt within the hold window can succeed.
type ProcessorError struct {
	Code      string
	Retryable bool
	cause     error
}

func (e *ProcessorError) Error() string {
	if e.cause != nil {
		return "processor: " + e.Code + ": " + e.cause.Error()
	}
	return "processor: " + e.Code
}

func (e *ProcessorError) Unwrap() error { return e.cause }

// NewProcessorError wraps a processor failure in the core's vocabulary.
func NewProcessorError(code string, retryable bool, cause error) *ProcessorError {
	return &ProcessorError{Code: code, Retryable: retryable, cause: cause}
}

// IsRetryableProcessor reports whether err is a processor failure the buyer
// may retry within the hold window.
func IsRetryableProcessor(err error) bool {
	var pe *ProcessorError
	return errors.As(err, &pe) && pe.Retryable
}
