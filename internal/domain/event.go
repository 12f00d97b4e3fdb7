package domain

import "time"

type FulfillmentMode string

const (
	// FulfillmentModeOwn means tickets are issued directly by the platform
	// on capture; no manual proof step is involved.
	FulfillmentModeOwn FulfillmentMode = "OWN"
	// FulfillmentModeResale means the organizer must upload proof of the
	// actual ticket before the payment may be captured.
	FulfillmentModeResale FulfillmentMode = "RESALE"
)

// Event is the catalog snapshot the reservation core operates against.
// RemainingStock is the shared counter; it is only ever adjusted through
// guarded single-row updates, never through cached reads.
type Event struct {
	ID              string
	OrganizerID     string
	Name            string
	UnitPrice       int64
	RemainingStock  int
	StartsAt        time.Time
	FulfillmentMode FulfillmentMode
	Version         int64
}

// HasStarted reports whether sales for the event are closed.
func (e Event) HasStarted(now time.Time) bool {
	return !e.StartsAt.After(now)
}
