package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

// CreatePayout inserts the seller-side settlement record. The unique index
// on payment_id is the idempotency guarantee: a replayed capture commit maps
// onto the existing payout instead of minting a second one.
func (s *Store) CreatePayout(ctx context.Context, payout domain.Payout) error {
	const stmt = `
INSERT INTO payouts (id, payment_id, reservation_id, organizer_id, amount, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.exec(ctx, stmt,
		payout.ID, payout.PaymentID, payout.ReservationID,
		payout.OrganizerID, payout.Amount, payout.Status, payout.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPaymentNotFound
		}
		return fmt.Errorf("create payout: %w", err)
	}
	return nil
}

func (s *Store) GetPayoutByPaymentID(ctx context.Context, paymentID string) (*domain.Payout, error) {
	const query = `
SELECT id, payment_id, reservation_id, organizer_id, amount, status, created_at
FROM payouts
WHERE payment_id = $1`

	var payout domain.Payout
	err := s.queryRow(ctx, query, paymentID).Scan(
		&payout.ID, &payout.PaymentID, &payout.ReservationID,
		&payout.OrganizerID, &payout.Amount, &payout.Status, &payout.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return &payout, nil
}
