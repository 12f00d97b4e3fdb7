package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/app"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type stubHolds struct {
	createFn func(ctx context.Context, in app.CreateHoldInput) (domain.Reservation, error)
	statusFn func(ctx context.Context, reservationID string) (app.HoldStatus, error)
	resumeFn func(ctx context.Context, reservationID, buyerID string) (domain.Reservation, error)
}

func (s *stubHolds) CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Reservation, error) {
	return s.createFn(ctx, in)
}

func (s *stubHolds) GetHoldStatus(ctx context.Context, reservationID string) (app.HoldStatus, error) {
	return s.statusFn(ctx, reservationID)
}

func (s *stubHolds) ResumeHold(ctx context.Context, reservationID, buyerID string) (domain.Reservation, error) {
	return s.resumeFn(ctx, reservationID, buyerID)
}

type stubPayments struct {
	authorizeFn func(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error)
	restartFn   func(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error)
}

func (s *stubPayments) Authorize(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error) {
	return s.authorizeFn(ctx, in)
}

func (s *stubPayments) Restart(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error) {
	return s.restartFn(ctx, in)
}

type stubFulfillment struct {
	uploadFn  func(ctx context.Context, in app.UploadProofInput) (domain.FulfillmentRecord, error)
	deliverFn func(ctx context.Context, reservationID, buyerID string) (domain.FulfillmentRecord, error)
}

func (s *stubFulfillment) UploadProof(ctx context.Context, in app.UploadProofInput) (domain.FulfillmentRecord, error) {
	return s.uploadFn(ctx, in)
}

func (s *stubFulfillment) Deliver(ctx context.Context, reservationID, buyerID string) (domain.FulfillmentRecord, error) {
	return s.deliverFn(ctx, reservationID, buyerID)
}

type stubCaptures struct {
	approveFn func(ctx context.Context, reservationID string) (app.CaptureOutcome, error)
	rejectFn  func(ctx context.Context, reservationID, reason string) (domain.FulfillmentRecord, error)
}

func (s *stubCaptures) ApproveAndCapture(ctx context.Context, reservationID string) (app.CaptureOutcome, error) {
	return s.approveFn(ctx, reservationID)
}

func (s *stubCaptures) Reject(ctx context.Context, reservationID, reason string) (domain.FulfillmentRecord, error) {
	return s.rejectFn(ctx, reservationID, reason)
}

type stubSweeper struct {
	sweepFn func(ctx context.Context, limit int) (app.SweepReport, error)
}

func (s *stubSweeper) SweepOverdue(ctx context.Context, limit int) (app.SweepReport, error) {
	return s.sweepFn(ctx, limit)
}

// asBuyer attaches an authenticated caller and, when id is set, a chi route
// parameter so handlers can be exercised without the full router.
func asBuyer(r *http.Request, subject, id string) *http.Request {
	ctx := WithPrincipal(r.Context(), Principal{Subject: subject, Role: "buyer"})
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}
