// Package outbox implements the transactional outbox for outbound WhatsApp
// messages: producers append a pending row and publish its id; the delivery
// worker in the delivery subpackage owns every status transition.
package outbox

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

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"

	// ScopePlatform marks entries that belong to the platform rather than a
	// tenant.
	ScopePlatform = "platform"

	// RecipientAdminGroup is the sentinel recipient resolved to the
	// configured admin group id at delivery time, so the group can be
	// changed without touching queued rows.
	RecipientAdminGroup = "admin_group"
)

// Message is what a producer wants delivered. To may be a raw phone number,
// a group id (IsGroup set), or RecipientAdminGroup.
type Message struct {
	To      string
	Message string
	IsGroup bool
	StoreID string
}

type envelope struct {
	EntryID string `json:"entry_id"`
}

// Producer appends pending outbox rows and notifies the delivery worker.
type Producer struct {
	db    *gorm.DB
	ch    *amqp.Channel
	queue string
}

func NewProducer(db *gorm.DB, ch *amqp.Channel, queue, dlq string) (*Producer, error) {
	if err := broker.DeclareQueue(ch, queue, dlq); err != nil {
		return nil, err
	}
	return &Producer{db: db, ch: ch, queue: queue}, nil
}

// Enqueue persists the entry and publishes its id. The row is written
// first: a lost publish leaves a pending row that the worker's startup
// sweep picks up.
func (p *Producer) Enqueue(ctx context.Context, msg Message) (string, error) {
	entry := store.OutboxEntry{
		ID:        uuid.NewString(),
		To:        msg.To,
		Message:   msg.Message,
		IsGroup:   msg.IsGroup,
		StoreID:   msg.StoreID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return "", fmt.Errorf("outbox: persist entry: %w", err)
	}

	body, err := json.Marshal(envelope{EntryID: entry.ID})
	if err != nil {
		return "", fmt.Errorf("outbox: marshal envelope: %w", err)
	}
	if err := broker.Publish(ctx, p.ch, p.queue, body); err != nil {
		return "", fmt.Errorf("outbox: publish entry %s: %w", entry.ID, err)
	}
	return entry.ID, nil
}
