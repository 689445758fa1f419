// Package broker holds the AMQP plumbing shared by the settlement worker
// and the notifier: durable queue declaration with dead-lettering and a
// worker-pool consumer.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
)

// DeclareQueue declares a durable queue. Rejected messages are dead-lettered
// to dlq when one is named.
func DeclareQueue(ch *amqp.Channel, queue, dlq string) error {
	args := amqp.Table{}
	if dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq

		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("broker: declare dead-letter queue %s: %w", dlq, err)
		}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("broker: declare queue %s: %w", queue, err)
	}
	return nil
}

// Publish sends a persistent JSON message to the named queue via the
// default exchange. The active trace context is injected into the message
// headers so consumers continue the publisher's trace.
func Publish(ctx context.Context, ch *amqp.Channel, queue string, body []byte) error {
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	return ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
}

// headerCarrier adapts amqp.Table to the propagator carrier interface.
// Non-string header values are ignored on read.
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { c[key] = value }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Consumer pulls deliveries from a durable queue and hands them to a fixed
// pool of workers.
type Consumer struct {
	conn        *amqp.Connection
	queue       string
	dlq         string
	prefetch    int
	workerCount int
	logger      *slog.Logger
}

func NewConsumer(conn *amqp.Connection, queue, dlq string, prefetch, workerCount int, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	if workerCount <= 0 {
		workerCount = 5
	}
	return &Consumer{
		conn:        conn,
		queue:       queue,
		dlq:         dlq,
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start consumes until the context is cancelled. Ack/nack decisions belong
// to the handler; errors are only logged here.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, amqp.Delivery) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, c.queue, c.dlq); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("broker: configure qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", c.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
					if err := handler(msgCtx, msg); err != nil {
						c.logger.Error("handler returned error", slog.Any("error", err))
					}
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}
