package app

import (
	"context"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
)

// expireRepo is the slice of repository behavior the forced-expiry
// transition needs; HoldRepository and SweepRepository both satisfy it.
type expireRepo interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error
	RestoreStock(ctx context.Context, eventID string, quantity int) error
	GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error
}

// expirePendingReservation drives an overdue PENDING_PAYMENT reservation to
// EXPIRED and releases its stock. It is a no-op when the reservation has
// moved on (already expired, paid, or carrying a live authorization), so the
// sweeper and a polling client may race it safely.
func expirePendingReservation(ctx context.Context, repo expireRepo, notifier notify.Notifier, res domain.Reservation, now time.Time) error {
	expired := false

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := repo.GetReservation(txCtx, res.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.ReservationStatusPendingPayment || !current.HoldExpired(now) {
			return nil
		}

		payment, err := repo.GetActivePayment(txCtx, current.ID)
		if err != nil {
			return err
		}
		if payment != nil {
			switch payment.Status {
			case domain.PaymentStatusAuthorized, domain.PaymentStatusCapturing:
				// A live authorization keeps the reservation out of the
				// hold-expiry path; the authorization window governs now.
				return nil
			case domain.PaymentStatusInitiated:
				aborted := *payment
				aborted.Status = domain.PaymentStatusAborted
				if err := repo.UpdatePayment(txCtx, aborted, payment.Version); err != nil {
					return err
				}
			}
		}

		current.Status = domain.ReservationStatusExpired
		if err := repo.UpdateReservation(txCtx, current, current.Version); err != nil {
			return err
		}
		if err := repo.RestoreStock(txCtx, current.EventID, current.Quantity); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return err
	}

	if expired {
		notifier.Publish(ctx, notify.Event{
			Kind:          notify.KindHoldExpired,
			ReservationID: res.ID,
			At:            now,
		})
	}
	return nil
}

// rejectRepo is the behavior the forced-rejection transition needs;
// CaptureRepository and SweepRepository both satisfy it.
type rejectRepo interface {
	expireRepo
	GetLatestPayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error)
	UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error
}

// rejectAndRelease rejects a reservation's fulfillment (when one exists),
// returns its stock, voids or refunds whatever the processor holds, and
// moves the reservation to toStatus (CANCELED for an admin decision,
// EXPIRED for a deadline breach). Every phase is guarded on the current
// state, so a partial failure can be retried to completion.
func rejectAndRelease(ctx context.Context, repo rejectRepo, proc processor.Client, notifier notify.Notifier,
	reservationID, reason string, toStatus domain.ReservationStatus, now time.Time) error {

	var payment *domain.Payment
	rejected := false

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := repo.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusPaid {
			return domain.ErrNotPendingPayment
		}

		payment, err = repo.GetLatestPayment(txCtx, reservationID)
		if err != nil {
			return err
		}
		if payment != nil && payment.Status == domain.PaymentStatusCapturing {
			// A capture call is in flight and may be about to settle;
			// touch nothing and let the next pass see the outcome.
			return domain.ErrCaptureInProgress
		}

		if rec, err := repo.GetFulfillment(txCtx, reservationID); err != nil {
			return err
		} else if rec != nil {
			switch rec.Status {
			case domain.FulfillmentStatusWaitingTicket, domain.FulfillmentStatusTicketUploaded:
				rec.Status = domain.FulfillmentStatusTicketRejected
				rec.RejectReason = reason
				if err := repo.UpdateFulfillment(txCtx, *rec, rec.Version); err != nil {
					return err
				}
				rejected = true
			case domain.FulfillmentStatusTicketApproved, domain.FulfillmentStatusDelivered:
				return domain.ErrNotPendingPayment
			}
		}

		if res.Status == domain.ReservationStatusPendingPayment {
			res.Status = toStatus
			if err := repo.UpdateReservation(txCtx, res, res.Version); err != nil {
				return err
			}
			if err := repo.RestoreStock(txCtx, res.EventID, res.Quantity); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if rejected {
		notifier.Publish(ctx, notify.Event{
			Kind:          notify.KindFulfillmentRejected,
			ReservationID: reservationID,
			Detail:        reason,
			At:            now,
		})
	}

	if payment == nil {
		return nil
	}

	switch payment.Status {
	case domain.PaymentStatusInitiated:
		aborted := *payment
		aborted.Status = domain.PaymentStatusAborted
		return repo.UpdatePayment(ctx, aborted, payment.Version)

	case domain.PaymentStatusAuthorized:
		// The buyer sees the rollback of a reserved (but unsettled) charge
		// as a refund, even though the gateway operation is a void.
		setRefundStatus(ctx, repo, payment.ReservationID, domain.RefundStatusRequested)
		if err := proc.Void(ctx, payment.ProcessorRef); err != nil {
			// The authorization still stands; the sweeper picks it up
			// again once its window has passed.
			return err
		}
		voided := *payment
		voided.Status = domain.PaymentStatusVoided
		if err := repo.UpdatePayment(ctx, voided, payment.Version); err != nil {
			return err
		}
		setRefundStatus(ctx, repo, payment.ReservationID, domain.RefundStatusSucceeded)
		return nil

	case domain.PaymentStatusCaptured:
		// Funds actually moved (a gateway that auto-settles despite
		// deferred capture); roll them back.
		return refundCaptured(ctx, repo, proc, notifier, *payment, now)
	}
	return nil
}

// refundCaptured initiates a refund for settled funds. A failed refund is
// escalated to operators and left flagged for manual reconciliation instead
// of being retried forever.
func refundCaptured(ctx context.Context, repo rejectRepo, proc processor.Client, notifier notify.Notifier,
	payment domain.Payment, now time.Time) error {

	setRefundStatus(ctx, repo, payment.ReservationID, domain.RefundStatusRequested)
	notifier.Publish(ctx, notify.Event{
		Kind:          notify.KindRefundRequested,
		ReservationID: payment.ReservationID,
		PaymentID:     payment.ID,
		At:            now,
	})

	if err := proc.Refund(ctx, payment.ProcessorRef, payment.CapturedAmount); err != nil {
		setRefundStatus(ctx, repo, payment.ReservationID, domain.RefundStatusFailed)
		notifier.Publish(ctx, notify.Event{
			Kind:          notify.KindRefundFailed,
			ReservationID: payment.ReservationID,
			PaymentID:     payment.ID,
			Detail:        err.Error(),
			At:            now,
		})
		return err
	}

	refunded := payment
	refunded.Status = domain.PaymentStatusRefunded
	if err := repo.UpdatePayment(ctx, refunded, payment.Version); err != nil {
		return err
	}
	setRefundStatus(ctx, repo, payment.ReservationID, domain.RefundStatusSucceeded)
	return nil
}

// setRefundStatus records the buyer-visible refund progress on the
// fulfillment record when one exists; OWN-inventory reservations carry the
// outcome on the payment status alone.
func setRefundStatus(ctx context.Context, repo rejectRepo, reservationID string, status domain.RefundStatus) {
	rec, err := repo.GetFulfillment(ctx, reservationID)
	if err != nil || rec == nil {
		return
	}
	if rec.RefundStatus == status {
		return
	}
	rec.RefundStatus = status
	_ = repo.UpdateFulfillment(ctx, *rec, rec.Version)
}
