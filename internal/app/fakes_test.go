package app

import (
	"context"
	"sync"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
)

// fakeRepo is an in-memory repository covering every service interface.
// WithTx serializes the callback under one mutex, mirroring how the real
// repository carries a transaction in the context, so concurrency tests
// exercise the same atomicity the database provides.
type fakeRepo struct {
	mu           sync.Mutex
	events       map[string]domain.Event
	reservations map[string]domain.Reservation
	payments     map[string]domain.Payment
	paymentOrder []string
	fulfillments map[string]domain.FulfillmentRecord
	payouts      map[string]domain.Payout
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:       make(map[string]domain.Event),
		reservations: make(map[string]domain.Reservation),
		payments:     make(map[string]domain.Payment),
		fulfillments: make(map[string]domain.FulfillmentRecord),
		payouts:      make(map[string]domain.Payout),
	}
}

type fakeTxKey struct{}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

func (f *fakeRepo) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeRepo) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	defer f.lock(ctx)()
	ev, ok := f.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, nil
}

func (f *fakeRepo) DecrementStock(ctx context.Context, eventID string, quantity int) error {
	defer f.lock(ctx)()
	ev, ok := f.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if ev.RemainingStock < quantity {
		return domain.ErrStockExhausted
	}
	ev.RemainingStock -= quantity
	ev.Version++
	f.events[eventID] = ev
	return nil
}

func (f *fakeRepo) RestoreStock(ctx context.Context, eventID string, quantity int) error {
	defer f.lock(ctx)()
	ev, ok := f.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	ev.RemainingStock += quantity
	ev.Version++
	f.events[eventID] = ev
	return nil
}

func (f *fakeRepo) FindActiveReservation(ctx context.Context, eventID, buyerID string, now time.Time) (*domain.Reservation, error) {
	defer f.lock(ctx)()
	for _, res := range f.reservations {
		if res.EventID == eventID && res.BuyerID == buyerID &&
			res.Status == domain.ReservationStatusPendingPayment && !res.HoldExpired(now) {
			r := res
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindPendingReservation(ctx context.Context, eventID, buyerID string) (*domain.Reservation, error) {
	defer f.lock(ctx)()
	for _, res := range f.reservations {
		if res.EventID == eventID && res.BuyerID == buyerID &&
			res.Status == domain.ReservationStatusPendingPayment {
			r := res
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateReservation(ctx context.Context, res domain.Reservation) error {
	defer f.lock(ctx)()
	// Mirrors the partial unique index on (event_id, buyer_id) over
	// PENDING_PAYMENT rows.
	for _, existing := range f.reservations {
		if existing.EventID == res.EventID && existing.BuyerID == res.BuyerID &&
			existing.Status == domain.ReservationStatusPendingPayment {
			return domain.ErrHoldActive
		}
	}
	f.reservations[res.ID] = res
	return nil
}

func (f *fakeRepo) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	defer f.lock(ctx)()
	res, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

func (f *fakeRepo) UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error {
	defer f.lock(ctx)()
	current, ok := f.reservations[res.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	res.Version = expectedVersion + 1
	f.reservations[res.ID] = res
	return nil
}

func (f *fakeRepo) CreatePayment(ctx context.Context, p domain.Payment) error {
	defer f.lock(ctx)()
	f.payments[p.ID] = p
	f.paymentOrder = append(f.paymentOrder, p.ID)
	return nil
}

func (f *fakeRepo) GetActivePayment(ctx context.Context, reservationID string) (*domain.Payment, error) {
	defer f.lock(ctx)()
	for i := len(f.paymentOrder) - 1; i >= 0; i-- {
		p := f.payments[f.paymentOrder[i]]
		if p.ReservationID == reservationID && !p.Terminal() {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetLatestPayment(ctx context.Context, reservationID string) (*domain.Payment, error) {
	defer f.lock(ctx)()
	for i := len(f.paymentOrder) - 1; i >= 0; i-- {
		p := f.payments[f.paymentOrder[i]]
		if p.ReservationID == reservationID {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) UpdatePayment(ctx context.Context, p domain.Payment, expectedVersion int64) error {
	defer f.lock(ctx)()
	current, ok := f.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	f.payments[p.ID] = p
	return nil
}

func (f *fakeRepo) CreateFulfillment(ctx context.Context, rec domain.FulfillmentRecord) error {
	defer f.lock(ctx)()
	f.fulfillments[rec.ReservationID] = rec
	return nil
}

func (f *fakeRepo) GetFulfillment(ctx context.Context, reservationID string) (*domain.FulfillmentRecord, error) {
	defer f.lock(ctx)()
	rec, ok := f.fulfillments[reservationID]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (f *fakeRepo) UpdateFulfillment(ctx context.Context, rec domain.FulfillmentRecord, expectedVersion int64) error {
	defer f.lock(ctx)()
	current, ok := f.fulfillments[rec.ReservationID]
	if !ok {
		return domain.ErrFulfillmentNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	f.fulfillments[rec.ReservationID] = rec
	return nil
}

func (f *fakeRepo) CreatePayout(ctx context.Context, payout domain.Payout) error {
	defer f.lock(ctx)()
	if _, exists := f.payouts[payout.PaymentID]; exists {
		return domain.ErrConflict
	}
	f.payouts[payout.PaymentID] = payout
	return nil
}

func (f *fakeRepo) GetPayoutByPaymentID(ctx context.Context, paymentID string) (*domain.Payout, error) {
	defer f.lock(ctx)()
	payout, ok := f.payouts[paymentID]
	if !ok {
		return nil, nil
	}
	cp := payout
	return &cp, nil
}

func (f *fakeRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	defer f.lock(ctx)()
	var out []domain.Reservation
	for _, res := range f.reservations {
		if len(out) >= limit {
			break
		}
		if res.Status != domain.ReservationStatusPendingPayment || !res.HoldExpired(now) {
			continue
		}
		if p := f.activePaymentLocked(res.ID); p != nil &&
			(p.Status == domain.PaymentStatusAuthorized || p.Status == domain.PaymentStatusCapturing) {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (f *fakeRepo) ListExpiredAuthorizations(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	defer f.lock(ctx)()
	var out []domain.Payment
	for _, id := range f.paymentOrder {
		if len(out) >= limit {
			break
		}
		p := f.payments[id]
		if p.Status != domain.PaymentStatusAuthorized {
			continue
		}
		if p.AuthorizationExpiresAt != nil && !p.AuthorizationExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListBreachedFulfillments(ctx context.Context, now time.Time, limit int) ([]domain.FulfillmentRecord, error) {
	defer f.lock(ctx)()
	var out []domain.FulfillmentRecord
	for _, rec := range f.fulfillments {
		if len(out) >= limit {
			break
		}
		if rec.DeadlineBreached(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) activePaymentLocked(reservationID string) *domain.Payment {
	for i := len(f.paymentOrder) - 1; i >= 0; i-- {
		p := f.payments[f.paymentOrder[i]]
		if p.ReservationID == reservationID && !p.Terminal() {
			cp := p
			return &cp
		}
	}
	return nil
}

// fakeProcessor scripts gateway behavior per call and records everything it
// was asked to do.
type fakeProcessor struct {
	mu sync.Mutex

	authorizeErr    error
	authorizeResult processor.AuthorizeResult
	onAuthorize     func()

	captureErrs    []error
	captureCalls   int
	capturedKeys   []string
	capturedAmount int64

	voidErr   error
	voided    []string
	refundErr error
	refunded  []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		authorizeResult: processor.AuthorizeResult{ProcessorRef: "proc-ref-1"},
	}
}

func (p *fakeProcessor) Authorize(_ context.Context, req processor.AuthorizeRequest) (processor.AuthorizeResult, error) {
	p.mu.Lock()
	hook := p.onAuthorize
	err := p.authorizeErr
	result := p.authorizeResult
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return processor.AuthorizeResult{}, err
	}
	return result, nil
}

func (p *fakeProcessor) Capture(_ context.Context, _ string, amount int64, key string) (processor.CaptureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.captureCalls
	p.captureCalls++
	if idx < len(p.captureErrs) && p.captureErrs[idx] != nil {
		return processor.CaptureResult{}, p.captureErrs[idx]
	}
	p.capturedKeys = append(p.capturedKeys, key)
	captured := amount
	if p.capturedAmount != 0 {
		captured = p.capturedAmount
	}
	return processor.CaptureResult{CapturedAmount: captured}, nil
}

func (p *fakeProcessor) Void(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voidErr != nil {
		return p.voidErr
	}
	p.voided = append(p.voided, ref)
	return nil
}

func (p *fakeProcessor) Refund(_ context.Context, ref string, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunded = append(p.refunded, ref)
	return nil
}

// recordingNotifier collects published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

// Seed helpers shared by the service tests.

func seedEvent(repo *fakeRepo, mode domain.FulfillmentMode, stock int, startsAt time.Time) domain.Event {
	ev := domain.Event{
		ID:              NewID(),
		OrganizerID:     "org-1",
		Name:            "test event",
		UnitPrice:       5000,
		RemainingStock:  stock,
		StartsAt:        startsAt,
		FulfillmentMode: mode,
		Version:         1,
	}
	repo.events[ev.ID] = ev
	return ev
}

func seedReservation(repo *fakeRepo, eventID, buyerID string, expiresAt time.Time, createdAt time.Time) domain.Reservation {
	res := domain.Reservation{
		ID:        NewID(),
		EventID:   eventID,
		BuyerID:   buyerID,
		Quantity:  1,
		Amount:    5000,
		Status:    domain.ReservationStatusPendingPayment,
		ExpiresAt: &expiresAt,
		CreatedAt: createdAt,
		Version:   1,
	}
	repo.reservations[res.ID] = res
	return res
}

func seedPayment(repo *fakeRepo, reservationID string, status domain.PaymentStatus, authExpiresAt *time.Time, createdAt time.Time) domain.Payment {
	p := domain.Payment{
		ID:                     NewID(),
		ReservationID:          reservationID,
		Status:                 status,
		IsDeferredCapture:      true,
		ProcessorRef:           "proc-ref-" + reservationID,
		AuthorizedAmount:       5000,
		AuthorizationExpiresAt: authExpiresAt,
		IdempotencyKey:         reservationID,
		CreatedAt:              createdAt,
		Version:                1,
	}
	repo.payments[p.ID] = p
	repo.paymentOrder = append(repo.paymentOrder, p.ID)
	return p
}

func seedFulfillment(repo *fakeRepo, reservationID string, status domain.FulfillmentStatus, uploadDeadline time.Time, createdAt time.Time) domain.FulfillmentRecord {
	rec := domain.FulfillmentRecord{
		ReservationID:          reservationID,
		Status:                 status,
		TicketUploadDeadlineAt: uploadDeadline,
		RefundStatus:           domain.RefundStatusNone,
		CreatedAt:              createdAt,
		Version:                1,
	}
	repo.fulfillments[reservationID] = rec
	return rec
}
