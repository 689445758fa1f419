// Package delivery drains the WhatsApp outbox: it resolves provider
// settings per entry, retries transient failures with backoff, and records
// the terminal status on the row.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/pkg/broker"
	"github.com/chikapos/settlement/internal/pkg/metrics"
	"github.com/chikapos/settlement/internal/pkg/retry"
	"github.com/chikapos/settlement/internal/store"
	"github.com/chikapos/settlement/internal/wa"
)

// Sender is the outbound provider call. *wa.Client satisfies it; tests
// substitute a recorder.
type Sender interface {
	Send(ctx context.Context, deviceID, to, message string, isGroup bool) error
}

// SettingsResolver yields the effective device and admin group.
type SettingsResolver interface {
	Resolve(ctx context.Context) (wa.Settings, error)
}

type Worker struct {
	db       *gorm.DB
	sender   Sender
	settings SettingsResolver
	retryCfg retry.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewWorker(db *gorm.DB, sender Sender, settings SettingsResolver, retryCfg retry.Config, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if m == nil {
		m = metrics.New()
	}
	return &Worker{
		db:       db,
		sender:   sender,
		settings: settings,
		retryCfg: retryCfg,
		metrics:  m,
		logger:   logger,
	}
}

type envelope struct {
	EntryID string `json:"entry_id"`
}

// HandleDelivery is the consumer handler. Deliveries for rows that are no
// longer pending are acked and dropped; the row is the source of truth.
func (w *Worker) HandleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		w.logger.Error("failed to unmarshal outbox envelope", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	// Continue the producer's trace across the broker hop.
	ctx, span := otel.Tracer("notifier").Start(ctx, "outbox.deliver")
	span.SetAttributes(attribute.String("outbox.entry_id", env.EntryID))
	defer span.End()

	var entry store.OutboxEntry
	if err := w.db.WithContext(ctx).First(&entry, "id = ?", env.EntryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w.logger.Warn("outbox entry not found, dropping delivery", slog.String("entry_id", env.EntryID))
			return msg.Ack(false)
		}
		_ = msg.Nack(false, true)
		return fmt.Errorf("load outbox entry %s: %w", env.EntryID, err)
	}

	if entry.Status != outbox.StatusPending {
		return msg.Ack(false)
	}

	w.process(ctx, &entry)
	return msg.Ack(false)
}

func (w *Worker) process(ctx context.Context, entry *store.OutboxEntry) {
	settings, err := w.settings.Resolve(ctx)
	if err != nil {
		w.fail(ctx, entry, fmt.Errorf("resolve settings: %w", err))
		return
	}
	if settings.DeviceID == "" {
		w.fail(ctx, entry, errors.New("no whatsapp device configured"))
		return
	}

	to, isGroup, err := resolveRecipient(entry.To, entry.IsGroup, settings)
	if err != nil {
		w.fail(ctx, entry, err)
		return
	}

	err = retry.Do(ctx, w.retryCfg, func(attempt int) error {
		if attempt > 1 {
			w.metrics.IncRetried()
			w.logger.InfoContext(ctx, "retrying outbox delivery",
				slog.String("entry_id", entry.ID), slog.Int("attempt", attempt))
		}
		return w.sender.Send(ctx, settings.DeviceID, to, entry.Message, isGroup)
	})
	if err != nil {
		w.fail(ctx, entry, err)
		return
	}

	now := time.Now().UTC()
	w.update(ctx, entry.ID, map[string]any{
		"status":       outbox.StatusSent,
		"sent_at":      now,
		"processed_at": now,
		"error":        "",
	})
	w.metrics.IncDelivered()
	w.logger.InfoContext(ctx, "outbox entry delivered", slog.String("entry_id", entry.ID))
}

// resolveRecipient turns the stored recipient into what the provider
// expects: the admin-group sentinel becomes the configured group id, direct
// numbers are normalized to the 62 country code.
func resolveRecipient(to string, isGroup bool, settings wa.Settings) (string, bool, error) {
	if to == outbox.RecipientAdminGroup {
		if settings.AdminGroup == "" {
			return "", false, errors.New("no admin group configured")
		}
		return settings.AdminGroup, true, nil
	}
	if isGroup {
		return to, true, nil
	}
	number := wa.FormatNumber(to)
	if number == "" {
		return "", false, errors.New("recipient has no usable number")
	}
	return number, false, nil
}

func (w *Worker) fail(ctx context.Context, entry *store.OutboxEntry, cause error) {
	w.update(ctx, entry.ID, map[string]any{
		"status":       outbox.StatusFailed,
		"error":        cause.Error(),
		"processed_at": time.Now().UTC(),
	})
	w.metrics.IncFailed()
	w.logger.ErrorContext(ctx, "outbox entry failed",
		slog.String("entry_id", entry.ID), slog.Any("error", cause))
}

func (w *Worker) update(ctx context.Context, id string, fields map[string]any) {
	if err := w.db.WithContext(ctx).Model(&store.OutboxEntry{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		w.logger.ErrorContext(ctx, "failed to update outbox entry",
			slog.String("entry_id", id), slog.Any("error", err))
	}
}

// RequeuePending republishes every pending entry at startup. It covers the
// producer crash window between the row insert and the publish.
func (w *Worker) RequeuePending(ctx context.Context, ch *amqp.Channel, queue string) error {
	var entries []store.OutboxEntry
	if err := w.db.WithContext(ctx).Where("status = ?", outbox.StatusPending).Find(&entries).Error; err != nil {
		return fmt.Errorf("delivery: load pending entries: %w", err)
	}

	for _, entry := range entries {
		body, err := json.Marshal(envelope{EntryID: entry.ID})
		if err != nil {
			return fmt.Errorf("delivery: marshal envelope: %w", err)
		}
		if err := broker.Publish(ctx, ch, queue, body); err != nil {
			return fmt.Errorf("delivery: requeue entry %s: %w", entry.ID, err)
		}
	}
	if len(entries) > 0 {
		w.logger.InfoContext(ctx, "requeued pending outbox entries", slog.Int("count", len(entries)))
	}
	return nil
}
