package app

import (
	"context"

	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

type FulfillmentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error)
	UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error
}

// FulfillmentService tracks the manual proof workflow for resale inventory.
// Money never moves here; approval and capture belong to CaptureService.
type FulfillmentService struct {
	repo  FulfillmentRepository
	clock clock.Clock
}

func NewFulfillmentService(repo FulfillmentRepository, clk clock.Clock) *FulfillmentService {
	return &FulfillmentService{repo: repo, clock: clk}
}

type UploadProofInput struct {
	ReservationID string
	OrganizerID   string
	FileRef       string
}

// UploadProof records the organizer's ticket proof. A re-upload before
// review overwrites the pending proof without a state change.
func (s *FulfillmentService) UploadProof(ctx context.Context, in UploadProofInput) (domain.FulfillmentRecord, error) {
	if in.FileRef == "" {
		return domain.FulfillmentRecord{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var result domain.FulfillmentRecord

	err := withVersionRetry(func() error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			res, err := s.repo.GetReservation(txCtx, in.ReservationID)
			if err != nil {
				return err
			}
			event, err := s.repo.GetEvent(txCtx, res.EventID)
			if err != nil {
				return err
			}
			if event.OrganizerID != in.OrganizerID {
				return domain.ErrForbidden
			}

			rec, err := s.repo.GetFulfillment(txCtx, in.ReservationID)
			if err != nil {
				return err
			}
			if rec == nil {
				return domain.ErrFulfillmentNotFound
			}
			if !rec.UploadOpen(now) {
				return domain.ErrUploadClosed
			}

			rec.Status = domain.FulfillmentStatusTicketUploaded
			rec.FileRef = in.FileRef
			if err := s.repo.UpdateFulfillment(txCtx, *rec, rec.Version); err != nil {
				return err
			}
			rec.Version++
			result = *rec
			return nil
		})
	})
	if err != nil {
		return domain.FulfillmentRecord{}, err
	}
	return result, nil
}

// Deliver hands the approved ticket to the buyer and records the first
// successful retrieval. The transition is informational and idempotent;
// it never touches money.
func (s *FulfillmentService) Deliver(ctx context.Context, reservationID, buyerID string) (domain.FulfillmentRecord, error) {
	now := s.clock.Now()
	var result domain.FulfillmentRecord

	err := withVersionRetry(func() error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			res, err := s.repo.GetReservation(txCtx, reservationID)
			if err != nil {
				return err
			}
			if res.BuyerID != buyerID {
				return domain.ErrForbidden
			}

			rec, err := s.repo.GetFulfillment(txCtx, reservationID)
			if err != nil {
				return err
			}
			if rec == nil {
				return domain.ErrFulfillmentNotFound
			}

			switch rec.Status {
			case domain.FulfillmentStatusDelivered:
				result = *rec
				return nil
			case domain.FulfillmentStatusTicketApproved:
			default:
				return domain.ErrNotApproved
			}

			rec.Status = domain.FulfillmentStatusDelivered
			rec.DeliveredAt = &now
			if err := s.repo.UpdateFulfillment(txCtx, *rec, rec.Version); err != nil {
				return err
			}
			rec.Version++
			result = *rec
			return nil
		})
	})
	if err != nil {
		return domain.FulfillmentRecord{}, err
	}
	return result, nil
}
