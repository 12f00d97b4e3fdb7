package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

// ListOverduePending returns pending reservations whose hold deadline has
// passed and that carry no live authorization. Rows holding a live
// authorization are governed by the authorization window instead.
func (s *Store) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations r
WHERE r.status = 'PENDING_PAYMENT'
  AND r.expires_at <= $1
  AND NOT EXISTS (
    SELECT 1 FROM payments p
    WHERE p.reservation_id = r.id AND p.status IN ('AUTHORIZED', 'CAPTURING')
  )
ORDER BY r.expires_at ASC
LIMIT $2`

	rows, err := s.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue pending: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue reservation: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate overdue reservations: %w", rows.Err())
	}
	return out, nil
}

func (s *Store) ListExpiredAuthorizations(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	const query = `
SELECT ` + paymentColumns + `
FROM payments
WHERE status = 'AUTHORIZED' AND authorization_expires_at IS NOT NULL AND authorization_expires_at <= $1
ORDER BY authorization_expires_at ASC
LIMIT $2`

	rows, err := s.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired authorizations: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired authorization: %w", err)
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate expired authorizations: %w", rows.Err())
	}
	return out, nil
}

func (s *Store) ListBreachedFulfillments(ctx context.Context, now time.Time, limit int) ([]domain.FulfillmentRecord, error) {
	const query = `
SELECT ` + fulfillmentColumns + `
FROM fulfillments
WHERE status IN ('WAITING_TICKET', 'TICKET_UPLOADED') AND ticket_upload_deadline_at <= $1
ORDER BY ticket_upload_deadline_at ASC
LIMIT $2`

	rows, err := s.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list breached fulfillments: %w", err)
	}
	defer rows.Close()

	var out []domain.FulfillmentRecord
	for rows.Next() {
		rec, err := scanFulfillment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breached fulfillment: %w", err)
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate breached fulfillments: %w", rows.Err())
	}
	return out, nil
}
