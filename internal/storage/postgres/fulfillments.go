package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

const fulfillmentColumns = `reservation_id, status, file_ref, ticket_upload_deadline_at, refund_status, reject_reason, delivered_at, created_at, version`

func scanFulfillment(row pgx.Row) (domain.FulfillmentRecord, error) {
	var rec domain.FulfillmentRecord
	err := row.Scan(
		&rec.ReservationID, &rec.Status, &rec.FileRef, &rec.TicketUploadDeadlineAt,
		&rec.RefundStatus, &rec.RejectReason, &rec.DeliveredAt, &rec.CreatedAt, &rec.Version,
	)
	return rec, err
}

func (s *Store) CreateFulfillment(ctx context.Context, rec domain.FulfillmentRecord) error {
	const stmt = `
INSERT INTO fulfillments (reservation_id, status, file_ref, ticket_upload_deadline_at, refund_status, reject_reason, created_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.exec(ctx, stmt,
		rec.ReservationID, rec.Status, rec.FileRef, rec.TicketUploadDeadlineAt,
		rec.RefundStatus, rec.RejectReason, rec.CreatedAt, rec.Version,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReservationNotFound
		}
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("create fulfillment: %w", err)
	}
	return nil
}

func (s *Store) GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error) {
	rec, err := scanFulfillment(s.queryRow(ctx,
		`SELECT `+fulfillmentColumns+` FROM fulfillments WHERE reservation_id = $1`, reservationID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get fulfillment: %w", err)
	}
	return &rec, nil
}

func (s *Store) UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error {
	const stmt = `
UPDATE fulfillments
SET status = $2, file_ref = $3, refund_status = $4, reject_reason = $5, delivered_at = $6, version = version + 1
WHERE reservation_id = $1 AND version = $7`

	tag, err := s.exec(ctx, stmt,
		rec.ReservationID, rec.Status, rec.FileRef, rec.RefundStatus,
		rec.RejectReason, rec.DeliveredAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update fulfillment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fulfillments WHERE reservation_id = $1)`, rec.ReservationID).Scan(&exists); err != nil {
			return fmt.Errorf("check fulfillment: %w", err)
		}
		if !exists {
			return domain.ErrFulfillmentNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}
