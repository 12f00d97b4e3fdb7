package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

const reservationColumns = `id, event_id, buyer_id, quantity, amount, status, expires_at, paid_at, resumed_at, created_at, version`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.EventID, &res.BuyerID, &res.Quantity, &res.Amount,
		&res.Status, &res.ExpiresAt, &res.PaidAt, &res.ResumedAt,
		&res.CreatedAt, &res.Version,
	)
	return res, err
}

func (s *Store) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, event_id, buyer_id, quantity, amount, status, expires_at, created_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.exec(ctx, stmt,
		res.ID, res.EventID, res.BuyerID, res.Quantity, res.Amount,
		res.Status, res.ExpiresAt, res.CreatedAt, res.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrHoldActive
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	res, err := scanReservation(s.queryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (s *Store) FindActiveReservation(ctx context.Context, eventID, buyerID string, now time.Time) (*domain.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE event_id = $1 AND buyer_id = $2 AND status = 'PENDING_PAYMENT' AND expires_at > $3
ORDER BY created_at DESC
LIMIT 1`

	res, err := scanReservation(s.queryRow(ctx, query, eventID, buyerID, now))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active reservation: %w", err)
	}
	return &res, nil
}

// FindPendingReservation returns the buyer's PENDING_PAYMENT row for the
// event regardless of its deadline, so a stale hold can be resolved before a
// new one is inserted under the one-active-hold constraint.
func (s *Store) FindPendingReservation(ctx context.Context, eventID, buyerID string) (*domain.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE event_id = $1 AND buyer_id = $2 AND status = 'PENDING_PAYMENT'
ORDER BY created_at DESC
LIMIT 1`

	res, err := scanReservation(s.queryRow(ctx, query, eventID, buyerID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending reservation: %w", err)
	}
	return &res, nil
}

// UpdateReservation writes the mutable columns if and only if the row still
// carries expectedVersion.
func (s *Store) UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error {
	const stmt = `
UPDATE reservations
SET status = $2, expires_at = $3, paid_at = $4, resumed_at = $5, version = version + 1
WHERE id = $1 AND version = $6`

	tag, err := s.exec(ctx, stmt,
		res.ID, res.Status, res.ExpiresAt, res.PaidAt, res.ResumedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, res.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check reservation: %w", err)
		}
		if !exists {
			return domain.ErrReservationNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}
