package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Latasoft/confiaticket-reservations/internal/app"
	"github.com/Latasoft/confiaticket-reservations/internal/clock"
	"github.com/Latasoft/confiaticket-reservations/internal/config"
	"github.com/Latasoft/confiaticket-reservations/internal/filestore"
	"github.com/Latasoft/confiaticket-reservations/internal/notify"
	"github.com/Latasoft/confiaticket-reservations/internal/processor"
	"github.com/Latasoft/confiaticket-reservations/internal/storage/postgres"
	transporthttp "github.com/Latasoft/confiaticket-reservations/internal/transport/http"
	"github.com/Latasoft/confiaticket-reservations/migrations"
)

const notifyQueue = "reservation-events"
const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()
	cfg := config.Load(logger)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	store := postgres.NewStore(pool)
	clk := clock.NewSystem()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AMQPURL != "" {
		notifier = notify.NewAMQP(cfg.AMQPURL, notifyQueue, logger)
	}

	var files filestore.Store
	if cfg.S3Bucket != "" {
		files, err = filestore.NewS3(startupCtx, filestore.S3Config{
			Region: cfg.S3Region,
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("init s3 store: %v", err)
		}
	} else {
		logger.Printf("WARN: S3_BUCKET not set, keeping uploads in memory")
		files = filestore.NewMemory()
	}

	gateway := processor.NewGateway(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey, cfg.ProcessorTimeout)

	holdSvc := app.NewHoldService(store, clk, notifier,
		app.WithHoldWindow(cfg.HoldWindow),
		app.WithUploadWindow(cfg.UploadWindow),
	)
	paymentSvc := app.NewPaymentService(store, gateway, clk, notifier,
		app.WithAuthWindow(cfg.AuthWindow),
	)
	captureSvc := app.NewCaptureService(store, gateway, clk, notifier)
	fulfillmentSvc := app.NewFulfillmentService(store, clk)
	sweeper := app.NewSweeper(store, gateway, clk, notifier, logger,
		app.WithSweepInterval(cfg.SweepInterval),
		app.WithSweepLimit(cfg.SweepLimit),
	)

	handler := transporthttp.NewRouter(transporthttp.RouterConfig{
		Holds:       holdSvc,
		Payments:    paymentSvc,
		Fulfillment: fulfillmentSvc,
		Captures:    captureSvc,
		Sweeper:     sweeper,
		Files:       files,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: parseCSV(cfg.CORSOrigins),
		Logger:      logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(stopCtx)

	log.Printf("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
