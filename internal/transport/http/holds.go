package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/app"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

// HoldManager is the slice of HoldService the hold endpoints need.
type HoldManager interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Reservation, error)
	GetHoldStatus(ctx context.Context, reservationID string) (app.HoldStatus, error)
	ResumeHold(ctx context.Context, reservationID, buyerID string) (domain.Reservation, error)
}

type createHoldRequest struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

type reservationResponse struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Quantity    int        `json:"quantity"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SecondsLeft int64      `json:"seconds_left"`
}

func toReservationResponse(res domain.Reservation, now time.Time) reservationResponse {
	resp := reservationResponse{
		ID:        res.ID,
		EventID:   res.EventID,
		Quantity:  res.Quantity,
		Amount:    res.Amount,
		Status:    string(res.Status),
		ExpiresAt: res.ExpiresAt,
	}
	if res.ExpiresAt != nil && res.ExpiresAt.After(now) {
		resp.SecondsLeft = int64(res.ExpiresAt.Sub(now) / time.Second)
	}
	return resp
}

// HandleCreateHold returns the handler for placing a new hold.
func HandleCreateHold(svc HoldManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		var req createHoldRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			EventID:  req.EventID,
			BuyerID:  p.Subject,
			Quantity: req.Quantity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toReservationResponse(res, time.Now().UTC()))
	}
}

type holdStatusResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
	SecondsLeft   int64  `json:"seconds_left"`
}

// HandleGetHold returns the handler for polling a hold's countdown.
func HandleGetHold(svc HoldManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.GetHoldStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(holdStatusResponse{
			ReservationID: status.ReservationID,
			Status:        string(status.Status),
			SecondsLeft:   status.SecondsLeft,
		})
	}
}

// HandleResumeHold returns the handler for the one-shot hold extension.
func HandleResumeHold(svc HoldManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		res, err := svc.ResumeHold(r.Context(), chi.URLParam(r, "id"), p.Subject)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toReservationResponse(res, time.Now().UTC()))
	}
}
