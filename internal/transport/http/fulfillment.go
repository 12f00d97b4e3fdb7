package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/app"
	"github.com/Latasoft/confiaticket-reservations/internal/domain"
	"github.com/Latasoft/confiaticket-reservations/internal/filestore"
)

// maxProofSize bounds the multipart upload; ticket proofs are documents,
// not videos.
const maxProofSize = 10 << 20

// FulfillmentTracker is the slice of FulfillmentService the proof endpoints
// need.
type FulfillmentTracker interface {
	UploadProof(ctx context.Context, in app.UploadProofInput) (domain.FulfillmentRecord, error)
	Deliver(ctx context.Context, reservationID, buyerID string) (domain.FulfillmentRecord, error)
}

type fulfillmentResponse struct {
	ReservationID string     `json:"reservation_id"`
	Status        string     `json:"status"`
	UploadedFile  string     `json:"uploaded_file,omitempty"`
	DeadlineAt    time.Time  `json:"ticket_upload_deadline_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

func toFulfillmentResponse(rec domain.FulfillmentRecord) fulfillmentResponse {
	return fulfillmentResponse{
		ReservationID: rec.ReservationID,
		Status:        string(rec.Status),
		UploadedFile:  rec.FileRef,
		DeadlineAt:    rec.TicketUploadDeadlineAt,
		DeliveredAt:   rec.DeliveredAt,
	}
}

// HandleUploadProof accepts the organizer's ticket proof as a multipart
// upload, stores the file, and records the reference on the fulfillment.
func HandleUploadProof(svc FulfillmentTracker, files filestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxProofSize)
		if err := r.ParseMultipartForm(maxProofSize); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid multipart body")
			return
		}
		file, header, err := r.FormFile("ticket")
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "ticket file is required")
			return
		}
		defer func() { _ = file.Close() }()

		ref, err := files.Put(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "failed to store file")
			return
		}

		rec, err := svc.UploadProof(r.Context(), app.UploadProofInput{
			ReservationID: chi.URLParam(r, "id"),
			OrganizerID:   p.Subject,
			FileRef:       ref,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toFulfillmentResponse(rec))
	}
}

// HandleDownloadTicket streams the approved ticket to the buyer and records
// the delivery.
func HandleDownloadTicket(svc FulfillmentTracker, files filestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		rec, err := svc.Deliver(r.Context(), chi.URLParam(r, "id"), p.Subject)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		body, contentType, err := files.Get(r.Context(), rec.FileRef)
		if err != nil {
			if err == filestore.ErrNotFound {
				writeError(w, http.StatusNotFound, codeNotFound, "ticket file not found")
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "failed to fetch file")
			return
		}
		defer func() { _ = body.Close() }()

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = io.Copy(w, body)
	}
}
