package domain

import "time"

type FulfillmentStatus string

const (
	FulfillmentStatusWaitingTicket  FulfillmentStatus = "WAITING_TICKET"
	FulfillmentStatusTicketUploaded FulfillmentStatus = "TICKET_UPLOADED"
	FulfillmentStatusTicketApproved FulfillmentStatus = "TICKET_APPROVED"
	FulfillmentStatusTicketRejected FulfillmentStatus = "TICKET_REJECTED"
	FulfillmentStatusDelivered      FulfillmentStatus = "DELIVERED"
)

type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "NONE"
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusSucceeded RefundStatus = "SUCCEEDED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// FulfillmentRecord tracks the manual proof workflow for resale inventory.
// Its upload deadline is independent of the payment authorization window.
type FulfillmentRecord struct {
	ReservationID          string
	Status                 FulfillmentStatus
	FileRef                string
	TicketUploadDeadlineAt time.Time
	RefundStatus           RefundStatus
	RejectReason           string
	DeliveredAt            *time.Time
	CreatedAt              time.Time
	Version                int64
}

// UploadOpen reports whether the organizer may still (re)upload proof.
func (f FulfillmentRecord) UploadOpen(now time.Time) bool {
	switch f.Status {
	case FulfillmentStatusWaitingTicket, FulfillmentStatusTicketUploaded:
		return f.TicketUploadDeadlineAt.After(now)
	}
	return false
}

// DeadlineBreached reports whether the sweeper must force a rejection.
func (f FulfillmentRecord) DeadlineBreached(now time.Time) bool {
	switch f.Status {
	case FulfillmentStatusWaitingTicket, FulfillmentStatusTicketUploaded:
		return !f.TicketUploadDeadlineAt.After(now)
	}
	return false
}
