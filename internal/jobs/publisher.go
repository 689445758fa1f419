package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/pkg/broker"
	"github.com/chikapos/settlement/internal/store"
)

// envelope is the broker message: just the job id. The payload itself lives
// on the job row so redeliveries always see the current status.
type envelope struct {
	JobID string `json:"job_id"`
}

type Publisher struct {
	db    *gorm.DB
	ch    *amqp.Channel
	queue string
}

// NewPublisher declares the durable job queue and returns a publisher bound
// to it.
func NewPublisher(db *gorm.DB, ch *amqp.Channel, queue, dlq string) (*Publisher, error) {
	if err := broker.DeclareQueue(ch, queue, dlq); err != nil {
		return nil, err
	}
	return &Publisher{db: db, ch: ch, queue: queue}, nil
}

// Enqueue persists a queued job row and publishes its id. The row is the
// source of truth; a lost publish leaves a visible queued row rather than
// silently dropped work.
func (p *Publisher) Enqueue(ctx context.Context, kind Kind, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobs: marshal payload: %w", err)
	}

	job := store.Job{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		Payload:   raw,
		Status:    string(StatusQueued),
		CreatedAt: time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("jobs: persist job: %w", err)
	}

	body, err := json.Marshal(envelope{JobID: job.ID})
	if err != nil {
		return "", fmt.Errorf("jobs: marshal envelope: %w", err)
	}
	if err := broker.Publish(ctx, p.ch, p.queue, body); err != nil {
		return "", fmt.Errorf("jobs: publish job %s: %w", job.ID, err)
	}
	return job.ID, nil
}
