package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"github.com/chikapos/settlement/internal/ai"
	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/pkg/config"
	"github.com/chikapos/settlement/internal/pkg/telemetry"
	"github.com/chikapos/settlement/internal/reports"
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

	shutdown, err := telemetry.SetupTracer(ctx, "reporter")
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

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		slog.Error("invalid report timezone", "timezone", cfg.ReportTimezone, "error", err)
		os.Exit(1)
	}

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

	producer, err := outbox.NewProducer(db, ch, cfg.NotifyQueue, cfg.DeadLetterQueue)
	if err != nil {
		slog.Error("failed to set up outbox producer", "error", err)
		os.Exit(1)
	}

	copywriter := ai.NewClient(cfg.AIBaseURL, 30*time.Second)
	runner := reports.NewRunner(db, producer, copywriter, loc, slog.Default())

	slog.Info("reporter running", "timezone", cfg.ReportTimezone)

	daily := time.NewTimer(time.Until(reports.NextDaily(time.Now(), loc)))
	weekly := time.NewTimer(time.Until(reports.NextWeekly(time.Now(), loc)))
	defer daily.Stop()
	defer weekly.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reporter stopped")
			return

		case <-daily.C:
			runner.RunDailySummary(ctx, time.Now())
			daily.Reset(time.Until(reports.NextDaily(time.Now(), loc)))

		case <-weekly.C:
			runner.RunInactiveFollowUp(ctx, time.Now())
			weekly.Reset(time.Until(reports.NextWeekly(time.Now(), loc)))
		}
	}
}
