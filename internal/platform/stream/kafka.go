// Package stream publishes domain events to Kafka.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the Kafka writer.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	BatchSize    int
}

// Publisher writes JSON encoded events keyed by aggregate id.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher builds a publisher backed by kafka-go. It returns nil when no
// brokers are configured; a nil Publisher discards events.
func NewPublisher(cfg Config) *Publisher {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: writer, topic: cfg.Topic}
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(writer MessageWriter, topic string) *Publisher {
	return &Publisher{writer: writer, topic: topic}
}

// Publish encodes payload as JSON and writes it under key.
func (p *Publisher) Publish(ctx context.Context, key string, payload any) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("platform/stream: encode %s: %w", p.topic, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("platform/stream: write %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
