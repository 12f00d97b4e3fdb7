package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPendingPayment ReservationStatus = "PENDING_PAYMENT"
	ReservationStatusPaid           ReservationStatus = "PAID"
	ReservationStatusCanceled       ReservationStatus = "CANCELED"
	ReservationStatusExpired        ReservationStatus = "EXPIRED"
)

// Reservation is a time-bounded lock on event stock. ExpiresAt, once set,
// never increases except through the explicit resume path; terminal
// reservations are retained for audit, never deleted.
type Reservation struct {
	ID        string
	EventID   string
	BuyerID   string
	Quantity  int
	Amount    int64
	Status    ReservationStatus
	ExpiresAt *time.Time
	PaidAt    *time.Time
	ResumedAt *time.Time
	CreatedAt time.Time
	Version   int64
}

// Terminal reports whether the reservation can no longer change state.
func (r Reservation) Terminal() bool {
	switch r.Status {
	case ReservationStatusPaid, ReservationStatusCanceled, ReservationStatusExpired:
		return true
	}
	return false
}

// HoldExpired reports whether the hold deadline has passed. A reservation
// without a deadline has no live hold and counts as expired.
func (r Reservation) HoldExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return true
	}
	return !r.ExpiresAt.After(now)
}
