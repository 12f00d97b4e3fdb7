package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Latasoft/confiaticket-reservations/internal/domain"
)

// Gateway is the HTTP client implementation of Client. Calls carry an
// explicit timeout and pass through a circuit breaker so a misbehaving
// gateway degrades into fast retryable failures instead of piling up
// blocked workers.
type Gateway struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewGateway builds a Gateway against baseURL with the given per-call
// timeout.
func NewGateway(baseURL, apiKey string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		breaker: cb,
	}
}

type authorizeBody struct {
	ReservationRef  string `json:"reservation_ref"`
	Amount          int64  `json:"amount"`
	DeferredCapture bool   `json:"deferred_capture"`
}

type authorizeReply struct {
	ProcessorRef string     `json:"processor_ref"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TTLSeconds   *int64     `json:"ttl_seconds,omitempty"`
	SecondsLeft  *int64     `json:"seconds_left,omitempty"`
}

func (g *Gateway) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	body, err := g.post(ctx, "/v1/authorizations", req.ReservationRef, authorizeBody{
		ReservationRef:  req.ReservationRef,
		Amount:          req.Amount,
		DeferredCapture: req.DeferredCapture,
	})
	if err != nil {
		return AuthorizeResult{}, err
	}

	var reply authorizeReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return AuthorizeResult{}, domain.NewProcessorError("bad_response", false, err)
	}
	if reply.Status != "authorized" {
		return AuthorizeResult{}, classifyDecline(reply.Status)
	}
	return AuthorizeResult{
		ProcessorRef: reply.ProcessorRef,
		ExpiresAt:    reply.ExpiresAt,
		TTLSeconds:   reply.TTLSeconds,
		SecondsLeft:  reply.SecondsLeft,
	}, nil
}

type captureBody struct {
	Amount int64 `json:"amount"`
}

type captureReply struct {
	Status         string `json:"status"`
	CapturedAmount int64  `json:"captured_amount"`
}

func (g *Gateway) Capture(ctx context.Context, processorRef string, amount int64, idempotencyKey string) (CaptureResult, error) {
	body, err := g.post(ctx, "/v1/authorizations/"+processorRef+"/capture", idempotencyKey, captureBody{Amount: amount})
	if err != nil {
		return CaptureResult{}, err
	}

	var reply captureReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return CaptureResult{}, domain.NewProcessorError("bad_response", false, err)
	}
	if reply.Status != "captured" {
		return CaptureResult{}, classifyDecline(reply.Status)
	}
	return CaptureResult{CapturedAmount: reply.CapturedAmount}, nil
}

func (g *Gateway) Void(ctx context.Context, processorRef string) error {
	_, err := g.post(ctx, "/v1/authorizations/"+processorRef+"/void", processorRef, struct{}{})
	return err
}

func (g *Gateway) Refund(ctx context.Context, processorRef string, amount int64) error {
	_, err := g.post(ctx, "/v1/authorizations/"+processorRef+"/refund", processorRef, captureBody{Amount: amount})
	return err
}

func (g *Gateway) post(ctx context.Context, path, idempotencyKey string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewProcessorError("bad_request", false, err)
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return nil, domain.NewProcessorError("bad_request", false, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpc.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, domain.NewProcessorError("bad_response", true, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		return nil, classifyStatus(resp.StatusCode, data)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewProcessorError("unavailable", true, err)
		}
		return nil, err
	}
	return body, nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProcessorError("timeout", true, err)
	}
	return domain.NewProcessorError("network", true, err)
}

// classifyStatus maps an HTTP response to the core's vocabulary. Declines
// are retryable by the buyer within the hold window; auth/config problems
// are not.
func classifyStatus(status int, body []byte) error {
	var reply struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &reply)

	switch {
	case status == http.StatusPaymentRequired:
		return classifyDecline(reply.Code)
	case status == http.StatusConflict:
		return domain.NewProcessorError("conflict", true, nil)
	case status == http.StatusTooManyRequests:
		return domain.NewProcessorError("rate_limited", true, nil)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.NewProcessorError("config", false, nil)
	case status >= 500:
		return domain.NewProcessorError("gateway_error", true, nil)
	default:
		return domain.NewProcessorError(fmt.Sprintf("http_%d", status), false, nil)
	}
}

func classifyDecline(code string) error {
	switch code {
	case "fraud_block":
		return domain.NewProcessorError("fraud_block", false, nil)
	case "":
		return domain.NewProcessorError("declined", true, nil)
	default:
		return domain.NewProcessorError(code, true, nil)
	}
}
