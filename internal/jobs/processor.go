package jobs

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

	"github.com/chikapos/settlement/internal/jobs/joblog"
	"github.com/chikapos/settlement/internal/settlement"
	"github.com/chikapos/settlement/internal/settlement/domain"
	"github.com/chikapos/settlement/internal/store"
)

// Processor turns a broker delivery into a job run: mark processing, run
// the kind's handler, mark the terminal status. No automatic retry — a
// failed job stays failed until a human re-submits.
type Processor struct {
	db      *gorm.DB
	settler *settlement.Settler
	audit   joblog.Repository // nil-safe: auditing skipped if nil
	logger  *slog.Logger
}

func NewProcessor(db *gorm.DB, settler *settlement.Settler, audit joblog.Repository, logger *slog.Logger) *Processor {
	return &Processor{db: db, settler: settler, audit: audit, logger: logger}
}

// HandleDelivery is the consumer handler. Every outcome except a broken
// envelope acks the delivery: terminal job statuses are recorded on the row
// itself, so redeliveries of finished work are dropped.
func (p *Processor) HandleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		p.logger.Error("failed to unmarshal job envelope", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	// One span per job run, continuing the trace the publisher injected
	// into the message headers. The audit log records its ids.
	ctx, span := otel.Tracer("settlement-worker").Start(ctx, "jobs.process")
	span.SetAttributes(attribute.String("job.id", env.JobID))
	defer span.End()

	var job store.Job
	if err := p.db.WithContext(ctx).First(&job, "id = ?", env.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.logger.Warn("job row not found, dropping delivery", slog.String("job_id", env.JobID))
			return msg.Ack(false)
		}
		_ = msg.Nack(false, true)
		return fmt.Errorf("load job %s: %w", env.JobID, err)
	}

	if Status(job.Status).Terminal() {
		// Redelivery of finished work.
		return msg.Ack(false)
	}

	p.run(ctx, &job)
	return msg.Ack(false)
}

func (p *Processor) run(ctx context.Context, job *store.Job) {
	now := time.Now().UTC()
	p.updateJob(ctx, job.ID, map[string]any{
		"status":     string(StatusProcessing),
		"started_at": now,
	})
	p.saveAudit(ctx, job, joblog.StatusStarted, nil)

	err := p.dispatch(ctx, job)

	processedAt := time.Now().UTC()
	switch {
	case err == nil:
		p.updateJob(ctx, job.ID, map[string]any{
			"status":       string(StatusCompleted),
			"processed_at": processedAt,
		})
		p.saveAudit(ctx, job, joblog.StatusCompleted, nil)
		p.logger.InfoContext(ctx, "job completed", slog.String("job_id", job.ID), slog.String("kind", job.Kind))

	case errors.Is(err, errUnknownKind):
		msg := fmt.Sprintf("unknown job type: %s", job.Kind)
		p.updateJob(ctx, job.ID, map[string]any{
			"status":       string(StatusUnknownType),
			"error":        msg,
			"processed_at": processedAt,
		})
		p.saveAudit(ctx, job, joblog.StatusUnknownType, []string{msg})
		p.logger.WarnContext(ctx, "unknown job type", slog.String("job_id", job.ID), slog.String("kind", job.Kind))

	default:
		p.updateJob(ctx, job.ID, map[string]any{
			"status":       string(StatusFailed),
			"error":        err.Error(),
			"processed_at": processedAt,
		})
		p.saveAudit(ctx, job, joblog.StatusFailed, []string{err.Error()})
		p.logger.ErrorContext(ctx, "job failed",
			slog.String("job_id", job.ID), slog.String("kind", job.Kind), slog.Any("error", err))
	}
}

var errUnknownKind = errors.New("unknown job kind")

// dispatch matches the closed kind union exhaustively. Adding a Kind
// constant without a case here leaves jobs of that kind in unknown_type,
// which the tests pin down.
func (p *Processor) dispatch(ctx context.Context, job *store.Job) error {
	var payload domain.OrderPayload

	switch Kind(job.Kind) {
	case KindPujaseraOrder:
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return domain.ErrIncompleteOrder
		}
		_, err := p.settler.Settle(ctx, payload, settlement.Options{AccrueLoyalty: false})
		return err

	case KindPujaseraOrderIndividual:
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return domain.ErrIncompleteOrder
		}
		_, err := p.settler.Settle(ctx, payload, settlement.Options{AccrueLoyalty: true})
		return err

	default:
		return errUnknownKind
	}
}

func (p *Processor) updateJob(ctx context.Context, id string, fields map[string]any) {
	if err := p.db.WithContext(ctx).Model(&store.Job{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		p.logger.ErrorContext(ctx, "failed to update job status",
			slog.String("job_id", id), slog.Any("error", err))
	}
}

func (p *Processor) saveAudit(ctx context.Context, job *store.Job, status joblog.Status, errs []string) {
	if p.audit == nil {
		return
	}
	entry := joblog.NewEntry(ctx, job.ID, job.Kind, status, errs)
	if err := p.audit.Save(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to append job log",
			slog.String("job_id", job.ID), slog.Any("error", err))
	}
}
