package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"github.com/chikapos/settlement/internal/outbox/delivery"
	"github.com/chikapos/settlement/internal/pkg/broker"
	"github.com/chikapos/settlement/internal/pkg/cache"
	"github.com/chikapos/settlement/internal/pkg/config"
	"github.com/chikapos/settlement/internal/pkg/metrics"
	"github.com/chikapos/settlement/internal/pkg/retry"
	"github.com/chikapos/settlement/internal/pkg/telemetry"
	"github.com/chikapos/settlement/internal/store"
	"github.com/chikapos/settlement/internal/wa"
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

	shutdown, err := telemetry.SetupTracer(ctx, "notifier")
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

	c := cache.Noop()
	if cfg.RedisAddr != "" {
		c = cache.NewRedisCache(cfg.RedisAddr, "notifier")
	}

	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	sender := wa.NewClient(cfg.WhaCenterBaseURL, cfg.ProviderTimeout)
	resolver := wa.NewResolver(db, c, cfg.WhatsAppDeviceID, cfg.WhatsAppAdminGroup, slog.Default())

	m := metrics.New()
	worker := delivery.NewWorker(db, sender, resolver, retry.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}, m, slog.Default())

	// Sweep pending rows left behind by producer crashes before consuming.
	sweepCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open broker channel", "error", err)
		os.Exit(1)
	}
	if err := broker.DeclareQueue(sweepCh, cfg.NotifyQueue, cfg.DeadLetterQueue); err != nil {
		slog.Error("failed to declare queue", "error", err)
		os.Exit(1)
	}
	if err := worker.RequeuePending(ctx, sweepCh, cfg.NotifyQueue); err != nil {
		slog.Error("failed to requeue pending entries", "error", err)
	}
	sweepCh.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		addr := ":" + cfg.HTTPPort
		slog.Info("notifier metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	consumer := broker.NewConsumer(conn, cfg.NotifyQueue, cfg.DeadLetterQueue,
		cfg.PrefetchCount, cfg.WorkerCount, slog.Default())

	slog.Info("notifier running", "queue", cfg.NotifyQueue, "workers", cfg.WorkerCount)

	if err := consumer.Start(ctx, worker.HandleDelivery); err != nil {
		slog.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("notifier stopped")
}
