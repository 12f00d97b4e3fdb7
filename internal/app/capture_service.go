package app

import (
	"context"

	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
)

type CaptureRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error
	RestoreStock(ctx context.Context, eventID string, quantity int) error
	GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	GetLatestPayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error
	GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error)
	UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error
	CreatePayout(ctx context.Context, payout domain.Payout) error
	GetPayoutByPaymentID(ctx context.Context, paymentID string) (*domain.Payout, error)
}

// CaptureService performs the irreversible settlement step. Approval and
// capture happen as one logical transaction: a CAS claims the payment, the
// processor capture is retried under one idempotency key, and a single
// database transaction commits the approved state plus exactly one payout.
type CaptureService struct {
	repo     CaptureRepository
	proc     processor.Client
	clock    clock.Clock
	notifier notify.Notifier
}

func NewCaptureService(repo CaptureRepository, proc processor.Client, clk clock.Clock, notifier notify.Notifier) *CaptureService {
	svc := &CaptureService{repo: repo, proc: proc, clock: clk, notifier: notifier}
	if svc.notifier == nil {
		svc.notifier = notify.Nop{}
	}
	return svc
}

type CaptureOutcome struct {
	CapturedAmount int64
	PayoutID       string
}

// captureAttempts bounds retries of the processor capture call on
// ambiguous transport failures; the idempotency key makes each retry safe.
const captureAttempts = 3

// ApproveAndCapture approves the uploaded fulfillment proof and captures the
// authorized payment atomically. Calling it again for an already-captured
// reservation returns the original outcome.
func (s *CaptureService) ApproveAndCapture(ctx context.Context, reservationID string) (CaptureOutcome, error) {
	now := s.clock.Now()

	// Phase 1: claim the payment.
	var payment domain.Payment
	var done *CaptureOutcome
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}

		p, err := s.repo.GetLatestPayment(txCtx, reservationID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrPaymentNotFound
		}

		if p.Status == domain.PaymentStatusCaptured {
			payout, err := s.repo.GetPayoutByPaymentID(txCtx, p.ID)
			if err != nil {
				return err
			}
			out := CaptureOutcome{CapturedAmount: p.CapturedAmount}
			if payout != nil {
				out.PayoutID = payout.ID
			}
			done = &out
			return nil
		}

		switch p.Status {
		case domain.PaymentStatusAuthorized:
		case domain.PaymentStatusCapturing:
			return domain.ErrCaptureInProgress
		default:
			return domain.ErrNotAuthorized
		}
		if !p.Capturable(now) {
			return domain.ErrAuthorizationExpired
		}
		if res.Status != domain.ReservationStatusPendingPayment {
			return domain.ErrNotPendingPayment
		}

		// Manually-fulfilled inventory needs uploaded proof; OWN events
		// carry no fulfillment record and skip the check.
		if rec, err := s.repo.GetFulfillment(txCtx, reservationID); err != nil {
			return err
		} else if rec != nil && rec.Status != domain.FulfillmentStatusTicketUploaded {
			if rec.Status == domain.FulfillmentStatusTicketRejected {
				return domain.ErrNotUploaded
			}
			if rec.Status == domain.FulfillmentStatusWaitingTicket {
				return domain.ErrNotUploaded
			}
			return domain.ErrNotPendingPayment
		}

		claimed := *p
		claimed.Status = domain.PaymentStatusCapturing
		if err := s.repo.UpdatePayment(txCtx, claimed, p.Version); err != nil {
			return err
		}
		claimed.Version++
		payment = claimed
		return nil
	})
	if err != nil {
		return CaptureOutcome{}, err
	}
	if done != nil {
		return *done, nil
	}

	// Phase 2: processor capture, idempotent, retried on ambiguity.
	captured, procErr := s.captureWithRetry(ctx, payment)
	if procErr == nil && captured.CapturedAmount > payment.AuthorizedAmount {
		// A capture may settle less than the authorization, never more.
		procErr = domain.NewProcessorError("overcapture", false, nil)
	}
	if procErr != nil {
		// Terminal capture failure: hand the authorization back so a
		// later attempt (or the sweeper) can deal with it.
		back := payment
		back.Status = domain.PaymentStatusAuthorized
		if err := s.repo.UpdatePayment(ctx, back, payment.Version); err != nil && err != domain.ErrVersionConflict {
			return CaptureOutcome{}, err
		}
		return CaptureOutcome{}, procErr
	}

	// Phase 3: one transaction for payment, reservation, fulfillment and
	// the payout. The unique payout-per-payment constraint makes a replay
	// converge instead of double-creating.
	var outcome CaptureOutcome
	err = withVersionRetry(func() error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			res, err := s.repo.GetReservation(txCtx, reservationID)
			if err != nil {
				return err
			}
			event, err := s.repo.GetEvent(txCtx, res.EventID)
			if err != nil {
				return err
			}

			p, err := s.repo.GetLatestPayment(txCtx, reservationID)
			if err != nil {
				return err
			}
			if p == nil {
				return domain.ErrPaymentNotFound
			}

			if p.Status == domain.PaymentStatusCapturing {
				settled := *p
				settled.Status = domain.PaymentStatusCaptured
				settled.CapturedAmount = captured.CapturedAmount
				if err := s.repo.UpdatePayment(txCtx, settled, p.Version); err != nil {
					return err
				}
				p = &settled
			} else if p.Status != domain.PaymentStatusCaptured {
				return domain.ErrNotAuthorized
			}

			if res.Status == domain.ReservationStatusPendingPayment {
				res.Status = domain.ReservationStatusPaid
				res.PaidAt = &now
				if err := s.repo.UpdateReservation(txCtx, res, res.Version); err != nil {
					return err
				}
			}

			if rec, err := s.repo.GetFulfillment(txCtx, reservationID); err != nil {
				return err
			} else if rec != nil && rec.Status == domain.FulfillmentStatusTicketUploaded {
				rec.Status = domain.FulfillmentStatusTicketApproved
				if err := s.repo.UpdateFulfillment(txCtx, *rec, rec.Version); err != nil {
					return err
				}
			}

			payout, err := s.repo.GetPayoutByPaymentID(txCtx, p.ID)
			if err != nil {
				return err
			}
			if payout == nil {
				fresh := domain.Payout{
					ID:            NewID(),
					PaymentID:     p.ID,
					ReservationID: reservationID,
					OrganizerID:   event.OrganizerID,
					Amount:        p.CapturedAmount,
					Status:        domain.PayoutStatusPending,
					CreatedAt:     now,
				}
				if err := s.repo.CreatePayout(txCtx, fresh); err != nil {
					return err
				}
				payout = &fresh
			}

			outcome = CaptureOutcome{CapturedAmount: p.CapturedAmount, PayoutID: payout.ID}
			return nil
		})
	})
	if err != nil {
		return CaptureOutcome{}, err
	}

	s.notifier.Publish(ctx, notify.Event{
		Kind:          notify.KindPaymentCaptured,
		ReservationID: reservationID,
		PaymentID:     payment.ID,
		At:            now,
	})
	return outcome, nil
}

func (s *CaptureService) captureWithRetry(ctx context.Context, payment domain.Payment) (processor.CaptureResult, error) {
	key := payment.ReservationID + ":" + payment.ID
	var lastErr error
	for attempt := 0; attempt < captureAttempts; attempt++ {
		result, err := s.proc.Capture(ctx, payment.ProcessorRef, payment.AuthorizedAmount, key)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !domain.IsRetryableProcessor(err) {
			break
		}
	}
	return processor.CaptureResult{}, lastErr
}

// Reject marks the organizer's proof invalid, voids the authorization (or
// refunds settled funds), cancels the reservation and returns its stock.
func (s *CaptureService) Reject(ctx context.Context, reservationID, reason string) (domain.FulfillmentRecord, error) {
	now := s.clock.Now()

	err := withVersionRetry(func() error {
		return rejectAndRelease(ctx, s.repo, s.proc, s.notifier, reservationID, reason, domain.ReservationStatusCanceled, now)
	})
	if err != nil {
		return domain.FulfillmentRecord{}, err
	}

	rec, err := s.repo.GetFulfillment(ctx, reservationID)
	if err != nil {
		return domain.FulfillmentRecord{}, err
	}
	if rec == nil {
		return domain.FulfillmentRecord{}, domain.ErrFulfillmentNotFound
	}
	return *rec, nil
}
