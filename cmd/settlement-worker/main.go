package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"github.com/chikapos/settlement/internal/jobs"
	"github.com/chikapos/settlement/internal/jobs/joblog/sqlite"
	"github.com/chikapos/settlement/internal/pkg/broker"
	"github.com/chikapos/settlement/internal/pkg/cache"
	"github.com/chikapos/settlement/internal/pkg/config"
	"github.com/chikapos/settlement/internal/pkg/telemetry"
	"github.com/chikapos/settlement/internal/settlement"
	"github.com/chikapos/settlement/internal/store"
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

	shutdown, err := telemetry.SetupTracer(ctx, "settlement-worker")
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
		c = cache.NewRedisCache(cfg.RedisAddr, "settlement")
	}

	audit, err := sqlite.Open(cfg.JobLogPath)
	if err != nil {
		slog.Error("failed to open job log", "error", err)
		os.Exit(1)
	}
	defer audit.Close()

	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	settler := settlement.NewSettler(db, c)
	processor := jobs.NewProcessor(db, settler, audit, slog.Default())

	consumer := broker.NewConsumer(conn, cfg.JobQueue, cfg.DeadLetterQueue,
		cfg.PrefetchCount, cfg.WorkerCount, slog.Default())

	slog.Info("settlement worker running",
		"queue", cfg.JobQueue, "prefetch", cfg.PrefetchCount, "workers", cfg.WorkerCount)

	if err := consumer.Start(ctx, processor.HandleDelivery); err != nil {
		slog.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("settlement worker stopped")
}
