package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"github.com/chikapos/settlement/internal/httpx"
	"github.com/chikapos/settlement/internal/jobs"
	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/pkg/config"
	"github.com/chikapos/settlement/internal/pkg/telemetry"
	"github.com/chikapos/settlement/internal/store"
	"github.com/chikapos/settlement/internal/topup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, "gateway")
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open broker channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	publisher, err := jobs.NewPublisher(db, ch, cfg.JobQueue, cfg.DeadLetterQueue)
	if err != nil {
		slog.Error("failed to set up job publisher", "error", err)
		os.Exit(1)
	}

	producer, err := outbox.NewProducer(db, ch, cfg.NotifyQueue, cfg.DeadLetterQueue)
	if err != nil {
		slog.Error("failed to set up outbox producer", "error", err)
		os.Exit(1)
	}

	topups := topup.NewService(db, producer, slog.Default())

	handler := httpx.NewHandler(db, publisher, topups)
	router := httpx.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		slog.Info("gateway running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("gateway stopped")
}
