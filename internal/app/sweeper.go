package app

import (
	"context"
	"log"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
)

type SweepRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error
	RestoreStock(ctx context.Context, eventID string, quantity int) error
	GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	GetLatestPayment(ctx context.Context, reservationID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error
	GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error)
	UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error

	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	ListExpiredAuthorizations(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error)
	ListBreachedFulfillments(ctx context.Context, now time.Time, limit int) ([]domain.FulfillmentRecord, error)
}

// Sweeper resolves time-based transitions no synchronous user action would
// otherwise trigger, so no reservation stays ambiguously in limbo. Every
// action is guarded on the record's current state; re-running a sweep over
// an already-resolved set is a no-op.
type Sweeper struct {
	repo     SweepRepository
	proc     processor.Client
	clock    clock.Clock
	notifier notify.Notifier
	logger   *log.Logger

	interval time.Duration
	limit    int
}

func NewSweeper(repo SweepRepository, proc processor.Client, clk clock.Clock, notifier notify.Notifier, logger *log.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		proc:     proc,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		interval: 30 * time.Second,
		limit:    100,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the background tick.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepLimit bounds how many overdue records one pass processes.
func WithSweepLimit(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.limit = n
		}
	}
}

type SweepResult struct {
	Kind          string `json:"kind"`
	ReservationID string `json:"reservation_id"`
	Outcome       string `json:"outcome"`
}

type SweepReport struct {
	Processed int           `json:"processed"`
	Results   []SweepResult `json:"results"`
}

const (
	sweepKindHoldExpired    = "hold_expired"
	sweepKindAuthExpired    = "authorization_expired"
	sweepKindUploadDeadline = "upload_deadline_breached"
	sweepOutcomeResolved    = "resolved"
	sweepOutcomeError       = "error"
)

// SweepOverdue runs the three overdue scans once. Deadline-driven
// transitions are system actions, not anyone's error: failures here are
// logged and reported in the outcome list, never raised to the parties
// whose records were swept.
func (s *Sweeper) SweepOverdue(ctx context.Context, limit int) (SweepReport, error) {
	if limit <= 0 {
		limit = s.limit
	}
	now := s.clock.Now()
	var report SweepReport

	// 1. Holds past their deadline without a live authorization.
	pending, err := s.repo.ListOverduePending(ctx, now, limit)
	if err != nil {
		return report, err
	}
	for _, res := range pending {
		outcome := sweepOutcomeResolved
		if err := expirePendingReservation(ctx, s.repo, s.notifier, res, now); err != nil {
			outcome = sweepOutcomeError
			s.logger.Printf("sweep: expire reservation=%s err=%v", res.ID, err)
		}
		report.Results = append(report.Results, SweepResult{
			Kind:          sweepKindHoldExpired,
			ReservationID: res.ID,
			Outcome:       outcome,
		})
	}

	// 2. Authorizations whose capture window passed without approval.
	expired, err := s.repo.ListExpiredAuthorizations(ctx, now, limit)
	if err != nil {
		return report, err
	}
	for _, p := range expired {
		outcome := sweepOutcomeResolved
		err := rejectAndRelease(ctx, s.repo, s.proc, s.notifier,
			p.ReservationID, "authorization window passed without capture", domain.ReservationStatusExpired, now)
		if err != nil {
			outcome = sweepOutcomeError
			s.logger.Printf("sweep: void authorization reservation=%s payment=%s err=%v", p.ReservationID, p.ID, err)
		}
		report.Results = append(report.Results, SweepResult{
			Kind:          sweepKindAuthExpired,
			ReservationID: p.ReservationID,
			Outcome:       outcome,
		})
	}

	// 3. Fulfillment upload deadlines breached while proof was pending.
	breached, err := s.repo.ListBreachedFulfillments(ctx, now, limit)
	if err != nil {
		return report, err
	}
	for _, rec := range breached {
		outcome := sweepOutcomeResolved
		err := rejectAndRelease(ctx, s.repo, s.proc, s.notifier,
			rec.ReservationID, "ticket upload deadline passed", domain.ReservationStatusExpired, now)
		if err != nil {
			outcome = sweepOutcomeError
			s.logger.Printf("sweep: reject fulfillment reservation=%s err=%v", rec.ReservationID, err)
		}
		report.Results = append(report.Results, SweepResult{
			Kind:          sweepKindUploadDeadline,
			ReservationID: rec.ReservationID,
			Outcome:       outcome,
		})
	}

	report.Processed = len(report.Results)
	return report, nil
}

// Run drives SweepOverdue on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report, err := s.SweepOverdue(ctx, s.limit)
			if err != nil {
				s.logger.Printf("sweep: failed err=%v", err)
				continue
			}
			if report.Processed > 0 {
				s.logger.Printf("sweep: processed=%d", report.Processed)
			}
		case <-ctx.Done():
			return
		}
	}
}
