package app

import (
	"context"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/deadline"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
)

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	DecrementStock(ctx context.Context, eventID string, quantity int) error
	RestoreStock(ctx context.Context, eventID string, quantity int) error
	FindActiveReservation(ctx context.Context, eventID, buyerID string, now time.Time) (*domain.Reservation, error)
	FindPendingReservation(ctx context.Context, eventID, buyerID string) (*domain.Reservation, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	CreateFulfillment(ctx context.Context, rec domain.FulfillmentRecord) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error
	GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error
}

// HoldService owns the lifecycle of a reservation's temporary stock lock:
// creation, countdown, expiry detection, and the one-shot resume extension.
type HoldService struct {
	repo         HoldRepository
	clock        clock.Clock
	notifier     notify.Notifier
	holdWindow   time.Duration
	uploadWindow time.Duration
}

func NewHoldService(repo HoldRepository, clk clock.Clock, notifier notify.Notifier, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		repo:         repo,
		clock:        clk,
		notifier:     notifier,
		holdWindow:   deadline.DefaultHoldWindow,
		uploadWindow: 24 * time.Hour,
	}
	if svc.notifier == nil {
		svc.notifier = notify.Nop{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HoldServiceOption func(*HoldService)

// WithHoldWindow overrides how long a new hold reserves stock.
func WithHoldWindow(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdWindow = d
		}
	}
}

// WithUploadWindow overrides the proof-upload deadline for resale events.
func WithUploadWindow(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.uploadWindow = d
		}
	}
}

type CreateHoldInput struct {
	EventID  string
	BuyerID  string
	Quantity int
}

func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (domain.Reservation, error) {
	if in.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	if in.EventID == "" || in.BuyerID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.Reservation

	// A hold past its deadline that the sweeper has not visited yet still
	// occupies the one-active-hold slot; resolve it through the usual
	// expiry transition before inserting.
	if stale, err := s.repo.FindPendingReservation(ctx, in.EventID, in.BuyerID); err != nil {
		return domain.Reservation{}, err
	} else if stale != nil && stale.HoldExpired(now) {
		if err := expirePendingReservation(ctx, s.repo, s.notifier, *stale, now); err != nil {
			return domain.Reservation{}, err
		}
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEvent(txCtx, in.EventID)
		if err != nil {
			return err
		}
		if event.HasStarted(now) {
			return domain.ErrEventStarted
		}

		// Only one live hold per (event, buyer); the caller should resume
		// or wait it out.
		if existing, err := s.repo.FindActiveReservation(txCtx, in.EventID, in.BuyerID, now); err != nil {
			return err
		} else if existing != nil {
			return domain.ErrHoldActive
		}

		// Guarded single-row decrement; losing the race for the last unit
		// surfaces as stock exhaustion, never a negative counter.
		if err := s.repo.DecrementStock(txCtx, in.EventID, in.Quantity); err != nil {
			return err
		}

		ttl := int64(s.holdWindow / time.Second)
		expiresAt := deadline.Compute(
			deadline.Signals{TTLSeconds: &ttl},
			nil,
			deadline.Options{Now: now, HoldWindow: s.holdWindow},
		)

		res := domain.Reservation{
			ID:        NewID(),
			EventID:   in.EventID,
			BuyerID:   in.BuyerID,
			Quantity:  in.Quantity,
			Amount:    event.UnitPrice * int64(in.Quantity),
			Status:    domain.ReservationStatusPendingPayment,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			Version:   1,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			return err
		}

		if event.FulfillmentMode == domain.FulfillmentModeResale {
			rec := domain.FulfillmentRecord{
				ReservationID:          res.ID,
				Status:                 domain.FulfillmentStatusWaitingTicket,
				TicketUploadDeadlineAt: now.Add(s.uploadWindow),
				RefundStatus:           domain.RefundStatusNone,
				CreatedAt:              now,
				Version:                1,
			}
			if err := s.repo.CreateFulfillment(txCtx, rec); err != nil {
				return err
			}
		}

		result = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

type HoldStatus struct {
	ReservationID string
	Status        domain.ReservationStatus
	SecondsLeft   int64
}

// GetHoldStatus reports the reservation status and the remaining hold time.
// A deadline that has passed without authorization is resolved on the spot
// through the same idempotent transition the sweeper applies, so polling
// clients observe EXPIRED without waiting for the next sweep.
func (s *HoldService) GetHoldStatus(ctx context.Context, reservationID string) (HoldStatus, error) {
	now := s.clock.Now()

	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return HoldStatus{}, err
	}

	if res.Status == domain.ReservationStatusPendingPayment && res.HoldExpired(now) {
		if err := expirePendingReservation(ctx, s.repo, s.notifier, res, now); err != nil && err != domain.ErrVersionConflict {
			return HoldStatus{}, err
		}
		res, err = s.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return HoldStatus{}, err
		}
	}

	return HoldStatus{
		ReservationID: res.ID,
		Status:        res.Status,
		SecondsLeft:   deadline.SecondsRemaining(now, res.ExpiresAt),
	}, nil
}

// ResumeHold is the only path by which a hold deadline may increase. It is
// one-shot: a second resume returns the reservation unchanged rather than
// granting another window.
func (s *HoldService) ResumeHold(ctx context.Context, reservationID, buyerID string) (domain.Reservation, error) {
	now := s.clock.Now()
	var result domain.Reservation

	err := withVersionRetry(func() error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			res, err := s.repo.GetReservation(txCtx, reservationID)
			if err != nil {
				return err
			}
			if res.BuyerID != buyerID {
				return domain.ErrForbidden
			}
			switch res.Status {
			case domain.ReservationStatusPendingPayment:
			case domain.ReservationStatusExpired:
				return domain.ErrHoldExpired
			default:
				return domain.ErrNotPendingPayment
			}
			if res.ResumedAt != nil {
				result = res
				return nil
			}

			ttl := int64(s.holdWindow / time.Second)
			res.ExpiresAt = deadline.Compute(
				deadline.Signals{TTLSeconds: &ttl},
				res.ExpiresAt,
				deadline.Options{Now: now, HoldWindow: s.holdWindow, AllowExtend: true},
			)
			res.ResumedAt = &now

			if err := s.repo.UpdateReservation(txCtx, res, res.Version); err != nil {
				return err
			}
			res.Version++
			result = res
			return nil
		})
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}
