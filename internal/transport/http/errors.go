package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeEventNotFound        = "event_not_found"
	codeEventStarted         = "event_started"
	codeStockExhausted       = "stock_exhausted"
	codeHoldActive           = "hold_active"
	codeHoldNotFound         = "hold_not_found"
	codeHoldExpired          = "hold_expired"
	codeNotPendingPayment    = "not_pending_payment"
	codeSelfPurchase         = "self_purchase"
	codePaymentInProgress    = "payment_in_progress"
	codePaymentNotFound      = "payment_not_found"
	codeNotAuthorized        = "payment_not_authorized"
	codeAuthorizationExpired = "authorization_expired"
	codeCaptureInProgress    = "capture_in_progress"
	codeFulfillmentNotFound  = "fulfillment_not_found"
	codeUploadClosed         = "upload_window_closed"
	codeNotUploaded          = "ticket_not_uploaded"
	codeNotApproved          = "ticket_not_approved"
	codePaymentFailed        = "payment_failed"
	codeConflict             = "conflict"
	codeUnauthorized         = "unauthorized"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps a service error onto an HTTP status and stable code.
// A processor failure surfaces as 402 so the client can distinguish "your
// payment was declined" from "the request was malformed".
func writeDomainError(w http.ResponseWriter, err error) {
	var pe *domain.ProcessorError
	if errors.As(err, &pe) {
		writeError(w, http.StatusPaymentRequired, codePaymentFailed, err.Error())
		return
	}

	var status int
	var code string
	switch err {
	case domain.ErrInvalidID:
		status, code = http.StatusBadRequest, codeInvalidID
	case domain.ErrInvalidQuantity:
		status, code = http.StatusBadRequest, codeInvalidQuantity
	case domain.ErrEventNotFound:
		status, code = http.StatusNotFound, codeEventNotFound
	case domain.ErrEventStarted:
		status, code = http.StatusConflict, codeEventStarted
	case domain.ErrStockExhausted:
		status, code = http.StatusConflict, codeStockExhausted
	case domain.ErrHoldActive:
		status, code = http.StatusConflict, codeHoldActive
	case domain.ErrReservationNotFound:
		status, code = http.StatusNotFound, codeHoldNotFound
	case domain.ErrHoldExpired:
		status, code = http.StatusConflict, codeHoldExpired
	case domain.ErrNotPendingPayment:
		status, code = http.StatusConflict, codeNotPendingPayment
	case domain.ErrSelfPurchase:
		status, code = http.StatusForbidden, codeSelfPurchase
	case domain.ErrForbidden:
		status, code = http.StatusForbidden, codeForbidden
	case domain.ErrPaymentInProgress:
		status, code = http.StatusConflict, codePaymentInProgress
	case domain.ErrPaymentNotFound:
		status, code = http.StatusNotFound, codePaymentNotFound
	case domain.ErrNotAuthorized:
		status, code = http.StatusConflict, codeNotAuthorized
	case domain.ErrAuthorizationExpired:
		status, code = http.StatusConflict, codeAuthorizationExpired
	case domain.ErrCaptureInProgress:
		status, code = http.StatusConflict, codeCaptureInProgress
	case domain.ErrFulfillmentNotFound:
		status, code = http.StatusNotFound, codeFulfillmentNotFound
	case domain.ErrUploadClosed:
		status, code = http.StatusConflict, codeUploadClosed
	case domain.ErrNotUploaded:
		status, code = http.StatusConflict, codeNotUploaded
	case domain.ErrNotApproved:
		status, code = http.StatusConflict, codeNotApproved
	case domain.ErrVersionConflict, domain.ErrConflict:
		status, code = http.StatusConflict, codeConflict
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}
