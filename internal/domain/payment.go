package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "INITIATED"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	// PaymentStatusCapturing marks the first phase of an approve-and-capture:
	// exactly one caller wins the AUTHORIZED -> CAPTURING transition and owns
	// the processor call.
	PaymentStatusCapturing PaymentStatus = "CAPTURING"
	PaymentStatusCaptured  PaymentStatus = "CAPTURED"
	PaymentStatusVoided    PaymentStatus = "VOIDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusAborted   PaymentStatus = "ABORTED"
	PaymentStatusTimeout   PaymentStatus = "TIMEOUT"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is one authorization attempt against a reservation. A reservation
// may carry several attempts over its lifetime but only one that is not in a
// terminal state.
type Payment struct {
	ID                string
	ReservationID     string
	Status            PaymentStatus
	IsDeferredCapture bool
	ProcessorRef      string
	AuthorizedAmount  int64
	CapturedAmount    int64
	// AuthorizationExpiresAt is the hard deadline by which capture must
	// happen; past it the authorization is void.
	AuthorizationExpiresAt *time.Time
	IdempotencyKey         string
	FailureCode            string
	CreatedAt              time.Time
	Version                int64
}

// Terminal reports whether the payment attempt is finished for good.
func (p Payment) Terminal() bool {
	switch p.Status {
	case PaymentStatusCaptured, PaymentStatusVoided, PaymentStatusFailed,
		PaymentStatusAborted, PaymentStatusTimeout, PaymentStatusRefunded:
		return true
	}
	return false
}

// Capturable reports whether a capture may still be attempted.
func (p Payment) Capturable(now time.Time) bool {
	if p.Status != PaymentStatusAuthorized {
		return false
	}
	if p.AuthorizationExpiresAt == nil {
		return true
	}
	return p.AuthorizationExpiresAt.After(now)
}
