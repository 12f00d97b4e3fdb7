package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

func (s *Store) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	const query = `
SELECT id, organizer_id, name, unit_price, remaining_stock, starts_at, fulfillment_mode, version
FROM events
WHERE id = $1`

	var ev domain.Event
	err := s.queryRow(ctx, query, eventID).Scan(
		&ev.ID, &ev.OrganizerID, &ev.Name, &ev.UnitPrice,
		&ev.RemainingStock, &ev.StartsAt, &ev.FulfillmentMode, &ev.Version,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Event{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// DecrementStock takes quantity units off the shared counter. The guard in
// the WHERE clause is what keeps the counter non-negative under concurrent
// holds; losing the race reads back as stock exhaustion.
func (s *Store) DecrementStock(ctx context.Context, eventID string, quantity int) error {
	const stmt = `
UPDATE events
SET remaining_stock = remaining_stock - $2, version = version + 1
WHERE id = $1 AND remaining_stock >= $2`

	tag, err := s.exec(ctx, stmt, eventID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return domain.ErrEventNotFound
		}
		return domain.ErrStockExhausted
	}
	return nil
}

func (s *Store) RestoreStock(ctx context.Context, eventID string, quantity int) error {
	const stmt = `
UPDATE events
SET remaining_stock = remaining_stock + $2, version = version + 1
WHERE id = $1`

	tag, err := s.exec(ctx, stmt, eventID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("restore stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
