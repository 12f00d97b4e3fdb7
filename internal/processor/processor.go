// Package processor is the boundary to the external payment gateway. It
// exposes the four idempotent operations the core needs and translates
// gateway failures into the domain's own error vocabulary.
package processor

import (
	"context"
	"time"
)

// AuthorizeRequest asks the gateway to reserve funds without settling them.
type AuthorizeRequest struct {
	ReservationRef string
	Amount         int64
	// DeferredCapture selects authorize-now-capture-later at the gateway.
	DeferredCapture bool
}

// AuthorizeResult carries the gateway's reference and whatever expiry
// signals it chose to report. Gateways are inconsistent here: some send an
// absolute timestamp, some a TTL, some a remaining-time value that may be in
// milliseconds. The caller feeds all three into the deadline computation.
type AuthorizeResult struct {
	ProcessorRef string
	ExpiresAt    *time.Time
	TTLSeconds   *int64
	SecondsLeft  *int64
}

// CaptureResult reports how much actually settled; never more than was
// authorized.
type CaptureResult struct {
	CapturedAmount int64
}

// Client is the narrow contract the core consumes. All operations are
// idempotent keyed by the reservation/processor reference, so a retry after
// an ambiguous transport failure is always safe.
type Client interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	Capture(ctx context.Context, processorRef string, amount int64, idempotencyKey string) (CaptureResult, error)
	Void(ctx context.Context, processorRef string) error
	Refund(ctx context.Context, processorRef string, amount int64) error
}
