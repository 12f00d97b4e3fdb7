package app

import (
	"context"
	"errors"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/deadline"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
)

type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	CreatePayment(ctx context.Context, p domain.Payment) error
	UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error
}

// PaymentService requests deferred charges against the processor and tracks
// each attempt's authorization window. The processor call happens outside
// any row lock; the outcome is committed under a version check.
type PaymentService struct {
	repo       PaymentRepository
	proc       processor.Client
	clock      clock.Clock
	notifier   notify.Notifier
	authWindow time.Duration
}

func NewPaymentService(repo PaymentRepository, proc processor.Client, clk clock.Clock, notifier notify.Notifier, opts ...PaymentServiceOption) *PaymentService {
	svc := &PaymentService{
		repo:       repo,
		proc:       proc,
		clock:      clk,
		notifier:   notifier,
		authWindow: 72 * time.Hour,
	}
	if svc.notifier == nil {
		svc.notifier = notify.Nop{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PaymentServiceOption func(*PaymentService)

// WithAuthWindow caps how long an authorization stays capturable when the
// processor reports nothing tighter.
func WithAuthWindow(d time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		if d > 0 {
			s.authWindow = d
		}
	}
}

type AuthorizeInput struct {
	ReservationID string
	BuyerID       string
}

// Authorize runs a deferred-capture authorization for the reservation's full
// amount. On a declined or timed-out attempt the reservation stays
// PENDING_PAYMENT so the buyer may retry within the hold window.
func (s *PaymentService) Authorize(ctx context.Context, in AuthorizeInput) (domain.Payment, error) {
	now := s.clock.Now()

	// Phase 1: validate and record the attempt.
	var payment domain.Payment
	var event domain.Event
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservation(txCtx, in.ReservationID)
		if err != nil {
			return err
		}
		if res.BuyerID != in.BuyerID {
			return domain.ErrForbidden
		}
		if res.Status != domain.ReservationStatusPendingPayment {
			return domain.ErrNotPendingPayment
		}
		if res.HoldExpired(now) {
			return domain.ErrHoldExpired
		}

		event, err = s.repo.GetEvent(txCtx, res.EventID)
		if err != nil {
			return err
		}
		// Self-purchase is a rejected precondition, not a payment failure.
		if event.OrganizerID == in.BuyerID {
			return domain.ErrSelfPurchase
		}

		if active, err := s.repo.GetActivePayment(txCtx, res.ID); err != nil {
			return err
		} else if active != nil {
			return domain.ErrPaymentInProgress
		}

		payment = domain.Payment{
			ID:                NewID(),
			ReservationID:     res.ID,
			Status:            domain.PaymentStatusInitiated,
			IsDeferredCapture: event.FulfillmentMode == domain.FulfillmentModeResale,
			AuthorizedAmount:  res.Amount,
			IdempotencyKey:    res.ID,
			CreatedAt:         now,
			Version:           1,
		}
		return s.repo.CreatePayment(txCtx, payment)
	})
	if err != nil {
		return domain.Payment{}, err
	}

	// Phase 2: external call, no lock held.
	result, procErr := s.proc.Authorize(ctx, processor.AuthorizeRequest{
		ReservationRef:  payment.ReservationID,
		Amount:          payment.AuthorizedAmount,
		DeferredCapture: payment.IsDeferredCapture,
	})

	// Phase 3: commit the outcome under a version check.
	if procErr != nil {
		failed := payment
		failed.Status = domain.PaymentStatusFailed
		var pe *domain.ProcessorError
		if errors.As(procErr, &pe) {
			failed.FailureCode = pe.Code
			if pe.Code == "timeout" {
				failed.Status = domain.PaymentStatusTimeout
			}
		}
		if err := s.repo.UpdatePayment(ctx, failed, payment.Version); err != nil && err != domain.ErrVersionConflict {
			return domain.Payment{}, err
		}
		return domain.Payment{}, procErr
	}

	authorized := payment
	authorized.Status = domain.PaymentStatusAuthorized
	authorized.ProcessorRef = result.ProcessorRef
	authorized.AuthorizationExpiresAt = deadline.Compute(
		deadline.Signals{
			ExpiresAt:   result.ExpiresAt,
			TTLSeconds:  result.TTLSeconds,
			SecondsLeft: result.SecondsLeft,
		},
		nil,
		deadline.Options{Now: now, HoldWindow: s.authWindow},
	)
	if authorized.AuthorizationExpiresAt == nil {
		// The processor reported no window at all; fall back to policy.
		fallback := now.Add(s.authWindow)
		authorized.AuthorizationExpiresAt = &fallback
	}

	if err := s.repo.UpdatePayment(ctx, authorized, payment.Version); err != nil {
		if err == domain.ErrVersionConflict {
			// The sweeper aborted the attempt while the processor call was
			// in flight; release the funds it reserved.
			_ = s.proc.Void(ctx, result.ProcessorRef)
			return domain.Payment{}, domain.ErrHoldExpired
		}
		return domain.Payment{}, err
	}
	authorized.Version++

	s.notifier.Publish(ctx, notify.Event{
		Kind:          notify.KindPaymentAuthorized,
		ReservationID: payment.ReservationID,
		PaymentID:     payment.ID,
		At:            now,
	})
	return authorized, nil
}

// Restart abandons a prior attempt that never reached AUTHORIZED and runs a
// fresh authorization on a new payment record.
func (s *PaymentService) Restart(ctx context.Context, in AuthorizeInput) (domain.Payment, error) {
	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservation(txCtx, in.ReservationID)
		if err != nil {
			return err
		}
		if res.BuyerID != in.BuyerID {
			return domain.ErrForbidden
		}
		if res.Status != domain.ReservationStatusPendingPayment {
			return domain.ErrNotPendingPayment
		}
		if res.HoldExpired(now) {
			return domain.ErrHoldExpired
		}

		active, err := s.repo.GetActivePayment(txCtx, res.ID)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}
		// An authorization that already succeeded is not restartable; it
		// must be captured or voided.
		if active.Status != domain.PaymentStatusInitiated {
			return domain.ErrPaymentInProgress
		}
		aborted := *active
		aborted.Status = domain.PaymentStatusAborted
		return s.repo.UpdatePayment(txCtx, aborted, active.Version)
	})
	if err != nil {
		return domain.Payment{}, err
	}

	return s.Authorize(ctx, in)
}
