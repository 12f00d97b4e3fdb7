package domain

import "time"

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusScheduled PayoutStatus = "SCHEDULED"
	PayoutStatusInTransit PayoutStatus = "IN_TRANSIT"
	PayoutStatusPaid      PayoutStatus = "PAID"
	PayoutStatusFailed    PayoutStatus = "FAILED"
	PayoutStatusCanceled  PayoutStatus = "CANCELED"
)

// Payout is the seller-side record created exactly once per successful
// capture; payment_id is the idempotency key.
type Payout struct {
	ID            string
	PaymentID     string
	ReservationID string
	OrganizerID   string
	Amount        int64
	Status        PayoutStatus
	CreatedAt     time.Time
}
