package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

const paymentColumns = `id, reservation_id, status, is_deferred_capture, processor_ref, authorized_amount, captured_amount, authorization_expires_at, idempotency_key, failure_code, created_at, version`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.ReservationID, &p.Status, &p.IsDeferredCapture, &p.ProcessorRef,
		&p.AuthorizedAmount, &p.CapturedAmount, &p.AuthorizationExpiresAt,
		&p.IdempotencyKey, &p.FailureCode, &p.CreatedAt, &p.Version,
	)
	return p, err
}

func (s *Store) CreatePayment(ctx context.Context, p domain.Payment) error {
	const stmt = `
INSERT INTO payments (id, reservation_id, status, is_deferred_capture, processor_ref, authorized_amount, captured_amount, authorization_expires_at, idempotency_key, failure_code, created_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.exec(ctx, stmt,
		p.ID, p.ReservationID, p.Status, p.IsDeferredCapture, p.ProcessorRef,
		p.AuthorizedAmount, p.CapturedAmount, p.AuthorizationExpiresAt,
		p.IdempotencyKey, p.FailureCode, p.CreatedAt, p.Version,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReservationNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// GetActivePayment returns the newest non-terminal attempt, if any.
func (s *Store) GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error) {
	const query = `
SELECT ` + paymentColumns + `
FROM payments
WHERE reservation_id = $1 AND status IN ('INITIATED', 'AUTHORIZED', 'CAPTURING')
ORDER BY created_at DESC
LIMIT 1`

	return s.findPayment(ctx, query, reservationID)
}

func (s *Store) GetLatestPayment(ctx context.Context, reservationID string) (*domain.Payment, error) {
	const query = `
SELECT ` + paymentColumns + `
FROM payments
WHERE reservation_id = $1
ORDER BY created_at DESC, version DESC
LIMIT 1`

	return s.findPayment(ctx, query, reservationID)
}

func (s *Store) findPayment(ctx context.Context, query, reservationID string) (*domain.Payment, error) {
	p, err := scanPayment(s.queryRow(ctx, query, reservationID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error {
	const stmt = `
UPDATE payments
SET status = $2, processor_ref = $3, captured_amount = $4, authorization_expires_at = $5, failure_code = $6, version = version + 1
WHERE id = $1 AND version = $7`

	tag, err := s.exec(ctx, stmt,
		p.ID, p.Status, p.ProcessorRef, p.CapturedAmount,
		p.AuthorizationExpiresAt, p.FailureCode, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check payment: %w", err)
		}
		if !exists {
			return domain.ErrPaymentNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}
