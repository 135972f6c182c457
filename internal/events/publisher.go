package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher lazily manages one writer per topic.
type KafkaPublisher struct {
	brokers    []string
	scoreTopic string
	newWriter  func(topic string) messageWriter

	mu      sync.Mutex
	writers map[string]messageWriter
}

// NewKafkaPublisher creates a KafkaPublisher writing score events to scoreTopic.
func NewKafkaPublisher(brokers []string, scoreTopic string) *KafkaPublisher {
	p := &KafkaPublisher{
		brokers:    brokers,
		scoreTopic: scoreTopic,
		writers:    make(map[string]messageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p
}

// PublishScoreResynchronized writes the event keyed by user id so a user's
// events stay ordered within a partition.
func (p *KafkaPublisher) PublishScoreResynchronized(ctx context.Context, event ScoreResynchronized) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ScoreResynchronizedType)},
			{Key: "user_id", Value: []byte(event.UserID)},
		},
	}
	return p.writerForTopic(p.scoreTopic).WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) writerForTopic(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

func (p *KafkaPublisher) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
}

// Close releases all writers.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for topic, writer := range p.writers {
		err = multierr.Append(err, writer.Close())
		delete(p.writers, topic)
	}
	return err
}

// NoopPublisher drops every event. Used when Kafka is not configured.
type NoopPublisher struct{}

// PublishScoreResynchronized does nothing.
func (NoopPublisher) PublishScoreResynchronized(context.Context, ScoreResynchronized) error {
	return nil
}
