package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/storage/postgres"
	"github.com/Latasoft/confiaticket-reservations/internal/testutil"
)

func setupStore(t *testing.T) (*postgres.Store, context.Context, func(mode domain.FulfillmentMode, stock int) string) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	seed := func(mode domain.FulfillmentMode, stock int) string {
		return testutil.InsertEvent(t, ctx, pool, mode, stock, time.Now().Add(48*time.Hour))
	}
	return postgres.NewStore(pool), ctx, seed
}

func TestDecrementStock_NeverGoesNegative(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeOwn, 3)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.DecrementStock(ctx, eventID, 1)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch err {
		case nil:
			won++
		case domain.ErrStockExhausted:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 3 {
		t.Fatalf("expected 3 successful decrements, got %d", won)
	}

	ev, err := store.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.RemainingStock != 0 {
		t.Fatalf("expected stock 0, got %d", ev.RemainingStock)
	}

	if err := store.RestoreStock(ctx, eventID, 2); err != nil {
		t.Fatalf("restore stock: %v", err)
	}
	ev, _ = store.GetEvent(ctx, eventID)
	if ev.RemainingStock != 2 {
		t.Fatalf("expected stock 2 after restore, got %d", ev.RemainingStock)
	}
}

func TestDecrementStock_UnknownEvent(t *testing.T) {
	store, ctx, _ := setupStore(t)

	err := store.DecrementStock(ctx, "00000000-0000-0000-0000-000000000000", 1)
	if err != domain.ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	err = store.DecrementStock(ctx, "not-a-uuid", 1)
	if err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestReservationLifecycle(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeOwn, 5)
	now := time.Now().UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(15 * time.Minute)

	res := domain.Reservation{
		ID:        "11111111-1111-1111-1111-111111111111",
		EventID:   eventID,
		BuyerID:   "buyer-1",
		Quantity:  2,
		Amount:    10000,
		Status:    domain.ReservationStatusPendingPayment,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		Version:   1,
	}
	if err := store.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	got, err := store.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if got.Status != domain.ReservationStatusPendingPayment || got.Version != 1 {
		t.Fatalf("unexpected reservation: %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expires_at %v, got %v", expiresAt, got.ExpiresAt)
	}

	active, err := store.FindActiveReservation(ctx, eventID, "buyer-1", now)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active == nil || active.ID != res.ID {
		t.Fatalf("expected active reservation %s, got %+v", res.ID, active)
	}

	// Past the deadline the reservation no longer counts as active.
	active, err = store.FindActiveReservation(ctx, eventID, "buyer-1", expiresAt.Add(time.Second))
	if err != nil {
		t.Fatalf("find active after expiry: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active reservation, got %+v", active)
	}

	got.Status = domain.ReservationStatusPaid
	paidAt := now.Add(time.Minute)
	got.PaidAt = &paidAt
	if err := store.UpdateReservation(ctx, got, 1); err != nil {
		t.Fatalf("update reservation: %v", err)
	}

	// A writer still holding the old version loses.
	if err := store.UpdateReservation(ctx, got, 1); err != domain.ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ = store.GetReservation(ctx, res.ID)
	if got.Version != 2 || got.Status != domain.ReservationStatusPaid || got.PaidAt == nil {
		t.Fatalf("unexpected reservation after update: %+v", got)
	}
}

func TestCreateReservation_OneActiveHoldPerBuyer(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeOwn, 5)
	now := time.Now().UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(15 * time.Minute)

	first := domain.Reservation{
		ID:        "21111111-1111-1111-1111-111111111111",
		EventID:   eventID,
		BuyerID:   "buyer-1",
		Quantity:  1,
		Amount:    5000,
		Status:    domain.ReservationStatusPendingPayment,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		Version:   1,
	}
	if err := store.CreateReservation(ctx, first); err != nil {
		t.Fatalf("create first reservation: %v", err)
	}

	second := first
	second.ID = "21111111-1111-1111-1111-111111111112"
	if err := store.CreateReservation(ctx, second); err != domain.ErrHoldActive {
		t.Fatalf("expected ErrHoldActive for second pending hold, got %v", err)
	}

	// A different buyer, and a buyer whose previous hold left
	// PENDING_PAYMENT, are both unaffected.
	other := first
	other.ID = "21111111-1111-1111-1111-111111111113"
	other.BuyerID = "buyer-2"
	if err := store.CreateReservation(ctx, other); err != nil {
		t.Fatalf("create hold for other buyer: %v", err)
	}

	resolved, _ := store.GetReservation(ctx, first.ID)
	resolved.Status = domain.ReservationStatusExpired
	if err := store.UpdateReservation(ctx, resolved, resolved.Version); err != nil {
		t.Fatalf("expire first reservation: %v", err)
	}
	if err := store.CreateReservation(ctx, second); err != nil {
		t.Fatalf("create hold after expiry: %v", err)
	}
}

func TestFindPendingReservation_IgnoresDeadline(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeOwn, 5)
	now := time.Now().UTC().Truncate(time.Microsecond)
	expired := now.Add(-time.Minute)

	res := domain.Reservation{
		ID:        "31111111-1111-1111-1111-111111111111",
		EventID:   eventID,
		BuyerID:   "buyer-1",
		Quantity:  1,
		Amount:    5000,
		Status:    domain.ReservationStatusPendingPayment,
		ExpiresAt: &expired,
		CreatedAt: now,
		Version:   1,
	}
	if err := store.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	active, err := store.FindActiveReservation(ctx, eventID, "buyer-1", now)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active reservation, got %+v", active)
	}

	pending, err := store.FindPendingReservation(ctx, eventID, "buyer-1")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if pending == nil || pending.ID != res.ID {
		t.Fatalf("expected pending reservation %s, got %+v", res.ID, pending)
	}
}

func TestPaymentQueries(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeResale, 5)
	now := time.Now().UTC()
	expiresAt := now.Add(15 * time.Minute)
	res := domain.Reservation{
		ID: "22222222-2222-2222-2222-222222222222", EventID: eventID, BuyerID: "buyer-1",
		Quantity: 1, Amount: 5000, Status: domain.ReservationStatusPendingPayment,
		ExpiresAt: &expiresAt, CreatedAt: now, Version: 1,
	}
	if err := store.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	failed := domain.Payment{
		ID: "33333333-3333-3333-3333-333333333331", ReservationID: res.ID,
		Status: domain.PaymentStatusFailed, AuthorizedAmount: 5000,
		IdempotencyKey: res.ID, FailureCode: "card_declined",
		CreatedAt: now.Add(-time.Minute), Version: 1,
	}
	if err := store.CreatePayment(ctx, failed); err != nil {
		t.Fatalf("create failed payment: %v", err)
	}

	authExpiry := now.Add(72 * time.Hour)
	authorized := domain.Payment{
		ID: "33333333-3333-3333-3333-333333333332", ReservationID: res.ID,
		Status: domain.PaymentStatusAuthorized, IsDeferredCapture: true,
		ProcessorRef: "proc-1", AuthorizedAmount: 5000,
		AuthorizationExpiresAt: &authExpiry, IdempotencyKey: res.ID,
		CreatedAt: now, Version: 1,
	}
	if err := store.CreatePayment(ctx, authorized); err != nil {
		t.Fatalf("create authorized payment: %v", err)
	}

	active, err := store.GetActivePayment(ctx, res.ID)
	if err != nil {
		t.Fatalf("get active payment: %v", err)
	}
	if active == nil || active.ID != authorized.ID {
		t.Fatalf("expected active payment %s, got %+v", authorized.ID, active)
	}

	latest, err := store.GetLatestPayment(ctx, res.ID)
	if err != nil {
		t.Fatalf("get latest payment: %v", err)
	}
	if latest == nil || latest.ID != authorized.ID {
		t.Fatalf("expected latest payment %s, got %+v", authorized.ID, latest)
	}

	captured := *active
	captured.Status = domain.PaymentStatusCaptured
	captured.CapturedAmount = 5000
	if err := store.UpdatePayment(ctx, captured, active.Version); err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if err := store.UpdatePayment(ctx, captured, active.Version); err != domain.ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	active, err = store.GetActivePayment(ctx, res.ID)
	if err != nil {
		t.Fatalf("get active after capture: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active payment after capture, got %+v", active)
	}
}

func TestCreatePayout_OncePerPayment(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeOwn, 5)
	now := time.Now().UTC()
	expiresAt := now.Add(15 * time.Minute)
	res := domain.Reservation{
		ID: "44444444-4444-4444-4444-444444444444", EventID: eventID, BuyerID: "buyer-1",
		Quantity: 1, Amount: 5000, Status: domain.ReservationStatusPaid,
		ExpiresAt: &expiresAt, CreatedAt: now, Version: 1,
	}
	if err := store.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	p := domain.Payment{
		ID: "55555555-5555-5555-5555-555555555555", ReservationID: res.ID,
		Status: domain.PaymentStatusCaptured, AuthorizedAmount: 5000, CapturedAmount: 5000,
		IdempotencyKey: res.ID, CreatedAt: now, Version: 1,
	}
	if err := store.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	payout := domain.Payout{
		ID: "66666666-6666-6666-6666-666666666666", PaymentID: p.ID,
		ReservationID: res.ID, OrganizerID: "org-test", Amount: 5000,
		Status: domain.PayoutStatusPending, CreatedAt: now,
	}
	if err := store.CreatePayout(ctx, payout); err != nil {
		t.Fatalf("create payout: %v", err)
	}

	dup := payout
	dup.ID = "66666666-6666-6666-6666-666666666667"
	if err := store.CreatePayout(ctx, dup); err != domain.ErrConflict {
		t.Fatalf("expected ErrConflict on duplicate payout, got %v", err)
	}

	got, err := store.GetPayoutByPaymentID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if got == nil || got.ID != payout.ID {
		t.Fatalf("expected payout %s, got %+v", payout.ID, got)
	}
}

func TestSweepQueries(t *testing.T) {
	store, ctx, seed := setupStore(t)
	eventID := seed(domain.FulfillmentModeResale, 10)
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	mkRes := func(id string, expiresAt time.Time) domain.Reservation {
		res := domain.Reservation{
			ID: id, EventID: eventID, BuyerID: "buyer-" + id[len(id)-2:],
			Quantity: 1, Amount: 5000, Status: domain.ReservationStatusPendingPayment,
			ExpiresAt: &expiresAt, CreatedAt: now, Version: 1,
		}
		if err := store.CreateReservation(ctx, res); err != nil {
			t.Fatalf("create reservation %s: %v", id, err)
		}
		return res
	}

	overdue := mkRes("77777777-0000-0000-0000-000000000001", past)
	alive := mkRes("77777777-0000-0000-0000-000000000002", future)
	shielded := mkRes("77777777-0000-0000-0000-000000000003", past)

	// A live authorization keeps a reservation off the overdue list.
	authExpiry := now.Add(-time.Second)
	if err := store.CreatePayment(ctx, domain.Payment{
		ID: "88888888-0000-0000-0000-000000000001", ReservationID: shielded.ID,
		Status: domain.PaymentStatusAuthorized, AuthorizedAmount: 5000,
		AuthorizationExpiresAt: &authExpiry, IdempotencyKey: shielded.ID,
		CreatedAt: now, Version: 1,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	pending, err := store.ListOverduePending(ctx, now, 10)
	if err != nil {
		t.Fatalf("list overdue pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != overdue.ID {
		t.Fatalf("expected only %s overdue, got %+v", overdue.ID, pending)
	}

	expired, err := store.ListExpiredAuthorizations(ctx, now, 10)
	if err != nil {
		t.Fatalf("list expired authorizations: %v", err)
	}
	if len(expired) != 1 || expired[0].ReservationID != shielded.ID {
		t.Fatalf("expected one expired authorization for %s, got %+v", shielded.ID, expired)
	}

	if err := store.CreateFulfillment(ctx, domain.FulfillmentRecord{
		ReservationID: alive.ID, Status: domain.FulfillmentStatusWaitingTicket,
		TicketUploadDeadlineAt: past, RefundStatus: domain.RefundStatusNone,
		CreatedAt: now, Version: 1,
	}); err != nil {
		t.Fatalf("create fulfillment: %v", err)
	}

	breached, err := store.ListBreachedFulfillments(ctx, now, 10)
	if err != nil {
		t.Fatalf("list breached fulfillments: %v", err)
	}
	if len(breached) != 1 || breached[0].ReservationID != alive.ID {
		t.Fatalf("expected one breached fulfillment for %s, got %+v", alive.ID, breached)
	}
}
