package http

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Latasoft/confiaticket-reservations/internal/filestore"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Holds       HoldManager
	Payments    PaymentAuthorizer
	Fulfillment FulfillmentTracker
	Captures    CaptureApprover
	Sweeper     OverdueSweeper
	Files       filestore.Store

	JWTSecret   string
	CORSOrigins []string
	Logger      *log.Logger
}

// NewRouter wires every route behind authentication, request logging and
// CORS. Admin routes additionally require the admin role.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(cfg.Logger))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(cfg.JWTSecret))

		r.Post("/holds", HandleCreateHold(cfg.Holds))
		r.Get("/holds/{id}", HandleGetHold(cfg.Holds))
		r.Post("/holds/{id}/resume", HandleResumeHold(cfg.Holds))
		r.Post("/holds/{id}/payment", HandleAuthorizePayment(cfg.Payments))
		r.Post("/holds/{id}/payment/restart", HandleRestartPayment(cfg.Payments))
		r.Post("/holds/{id}/fulfillment", HandleUploadProof(cfg.Fulfillment, cfg.Files))
		r.Get("/holds/{id}/fulfillment/ticket", HandleDownloadTicket(cfg.Fulfillment, cfg.Files))

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/holds/{id}/approve", HandleApproveHold(cfg.Captures))
			r.Post("/holds/{id}/reject", HandleRejectHold(cfg.Captures))
			r.Post("/sweep", HandleSweep(cfg.Sweeper))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger logs method, path, status and latency for every request.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Printf(
				"request method=%s path=%s status=%d duration=%s",
				r.Method,
				r.URL.Path,
				rec.status,
				time.Since(start),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers for a configured allow-list.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowedOrigin := allowAll
			if !allowAll {
				_, allowedOrigin = allowed[origin]
			}
			if !allowedOrigin {
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
