// Package events publishes domain events for external consumers.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/janisto/citizen-profiles/internal/platform/config"
	"github.com/janisto/citizen-profiles/internal/platform/logging"
)

// Message is a keyed event payload. Messages sharing a key keep their order.
type Message struct {
	Key     string
	Type    string
	Payload []byte
}

// Publisher delivers messages to the event bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// producer is the subset of *kgo.Client used for publishing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher publishes messages to a single Kafka topic.
type KafkaPublisher struct {
	client producer
	topic  string
}

// NewKafkaPublisher connects to the configured brokers.
// Returns nil, nil when no brokers are configured.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

// Publish writes msg and waits for broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(msg.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// LogPublisher logs messages instead of delivering them. Used when no broker is configured.
type LogPublisher struct{}

// Publish logs the message type and payload size.
func (LogPublisher) Publish(ctx context.Context, msg Message) error {
	logging.LoggerFromContext(ctx).Debug("event not published: no broker configured",
		zap.String("type", msg.Type),
		zap.Int("bytes", len(msg.Payload)),
	)
	return nil
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = LogPublisher{}
)
