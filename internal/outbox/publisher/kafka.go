// Package publisher implements the dispatcher's broker publisher over Kafka
// using segmentio/kafka-go.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"session-plane/backend/internal/outbox/domain"
)

// Kafka publishes outbox events to one topic. The message key is the event's
// partition key (the aggregate id), so per-aggregate ordering is preserved;
// the event id travels as the message_id header for consumer-side dedupe.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka publisher that writes to the given topic.
// brokers must be non-empty. Call Close when shutting down.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Kafka{writer: writer}, nil
}

// Publish writes the event and returns its deduplication id once the broker
// acknowledges the write. Kafka assigns no server-side message id, so the
// event id doubles as the broker message id.
func (k *Kafka) Publish(ctx context.Context, e *domain.Event) (string, error) {
	msg := kafka.Message{
		Key:   []byte(e.PartitionKey),
		Value: e.Payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
			{Key: "aggregate_id", Value: []byte(e.AggregateID)},
			{Key: "occurred_at", Value: []byte(e.OccurredAt.UTC().Format(time.RFC3339Nano))},
			{Key: "correlation_id", Value: []byte(e.CorrelationID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return e.ID, nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (k *Kafka) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
