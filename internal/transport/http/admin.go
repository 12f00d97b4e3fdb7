package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/app"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

// CaptureApprover is the slice of CaptureService the admin review endpoints
// need.
type CaptureApprover interface {
	ApproveAndCapture(ctx context.Context, reservationID string) (app.CaptureOutcome, error)
	Reject(ctx context.Context, reservationID, reason string) (domain.FulfillmentRecord, error)
}

// OverdueSweeper runs the overdue scans on demand.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, limit int) (app.SweepReport, error)
}

type captureResponse struct {
	ReservationID  string `json:"reservation_id"`
	CapturedAmount int64  `json:"captured_amount"`
	PayoutID       string `json:"payout_id"`
}

// HandleApproveHold approves the uploaded proof and captures the payment.
func HandleApproveHold(svc CaptureApprover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		out, err := svc.ApproveAndCapture(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captureResponse{
			ReservationID:  id,
			CapturedAmount: out.CapturedAmount,
			PayoutID:       out.PayoutID,
		})
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// HandleRejectHold rejects the proof, rolls back the payment and releases
// the stock.
func HandleRejectHold(svc CaptureApprover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rejectRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Reason == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "reason is required")
			return
		}

		rec, err := svc.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toFulfillmentResponse(rec))
	}
}

// HandleSweep triggers one pass of the overdue scans and reports what was
// resolved.
func HandleSweep(sw OverdueSweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sw.SweepOverdue(r.Context(), 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "sweep failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}
