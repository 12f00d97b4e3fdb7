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

// PaymentAuthorizer is the slice of PaymentService the payment endpoints need.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error)
	Restart(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error)
}

type paymentResponse struct {
	ID                     string     `json:"id"`
	ReservationID          string     `json:"reservation_id"`
	Status                 string     `json:"status"`
	DeferredCapture        bool       `json:"deferred_capture"`
	AuthorizedAmount       int64      `json:"authorized_amount"`
	AuthorizationExpiresAt *time.Time `json:"authorization_expires_at,omitempty"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                     p.ID,
		ReservationID:          p.ReservationID,
		Status:                 string(p.Status),
		DeferredCapture:        p.IsDeferredCapture,
		AuthorizedAmount:       p.AuthorizedAmount,
		AuthorizationExpiresAt: p.AuthorizationExpiresAt,
	}
}

// HandleAuthorizePayment returns the handler for starting a deferred-capture
// authorization against a held reservation.
func HandleAuthorizePayment(svc PaymentAuthorizer) http.HandlerFunc {
	return paymentHandler(svc.Authorize)
}

// HandleRestartPayment abandons a stuck attempt and authorizes afresh.
func HandleRestartPayment(svc PaymentAuthorizer) http.HandlerFunc {
	return paymentHandler(svc.Restart)
}

func paymentHandler(run func(ctx context.Context, in app.AuthorizeInput) (domain.Payment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		payment, err := run(r.Context(), app.AuthorizeInput{
			ReservationID: chi.URLParam(r, "id"),
			BuyerID:       p.Subject,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toPaymentResponse(payment))
	}
}
