package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher emits engine events to downstream consumers.
type Publisher interface {
	PublishGameSettled(ctx context.Context, e GameSettled) error
	PublishDepositConfirmed(ctx context.Context, e DepositConfirmed) error
	Close() error
}

// KafkaPublisher writes events to Kafka, one writer per topic.
type KafkaPublisher struct {
	settled  *kafka.Writer
	deposits *kafka.Writer
}

// NewKafkaPublisher builds writers against the given broker list.
func NewKafkaPublisher(brokers string) *KafkaPublisher {
	return &KafkaPublisher{
		settled:  newWriter(brokers, TopicGameSettled),
		deposits: newWriter(brokers, TopicDepositConfirmed),
	}
}

func newWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// PublishGameSettled emits a settlement event keyed by session id.
func (p *KafkaPublisher) PublishGameSettled(ctx context.Context, e GameSettled) error {
	e.Ts = time.Now().UTC()
	return writeJSON(ctx, p.settled, e.SessionID, e)
}

// PublishDepositConfirmed emits a deposit event keyed by the provider reference.
func (p *KafkaPublisher) PublishDepositConfirmed(ctx context.Context, e DepositConfirmed) error {
	e.Ts = time.Now().UTC()
	return writeJSON(ctx, p.deposits, e.ProviderRef, e)
}

// Close flushes and closes both writers.
func (p *KafkaPublisher) Close() error {
	if err := p.settled.Close(); err != nil {
		return err
	}
	return p.deposits.Close()
}

func writeJSON(ctx context.Context, w *kafka.Writer, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}

// NopPublisher drops every event. Used when no broker is configured and in tests.
type NopPublisher struct{}

func (NopPublisher) PublishGameSettled(context.Context, GameSettled) error { return nil }

func (NopPublisher) PublishDepositConfirmed(context.Context, DepositConfirmed) error { return nil }

func (NopPublisher) Close() error { return nil }
