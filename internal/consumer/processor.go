// Package consumer turns run change events from Kafka into score resyncs and
// score events into cache invalidations.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded event. Payload carries the run change fields; for score
// events only its UserID and OccurredAt are set.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	UserID    string
	Payload   events.RunChanged
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger log.FieldLogger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetry sets how many times a failing message is handed to the Handler and
// the delay before the first retry. The delay doubles on every further attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if backoff >= 0 {
			p.backoff = backoff
		}
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   log.FieldLogger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   log.WithField("component", "consumer"),
		attempts: 3,
		backoff:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Errorf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.WithFields(log.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warnf("decode error: %v", decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Errorf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handle(ctx, event); handleErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// The group reader has already moved past msg. The next event for
			// the user rebuilds the whole series, so the miss is repaired then.
			p.logger.WithFields(log.Fields{
				"event_type": event.EventType,
				"user_id":    event.UserID,
				"attempts":   p.attempts,
			}).Errorf("handler error: %v", handleErr)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Errorf("commit error: %v", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

// handle dispatches msg, retrying failures with exponential backoff.
func (p *Processor) handle(ctx context.Context, msg Message) error {
	delay := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		recordHandlerError(msg)
		if attempt == p.attempts {
			break
		}

		p.logger.WithFields(log.Fields{
			"event_type": msg.EventType,
			"user_id":    msg.UserID,
			"attempt":    attempt,
		}).Warnf("handler error, retrying in %s: %v", delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	var payload events.RunChanged
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return Message{}, fmt.Errorf("decode payload: %w", err)
	}

	userID := payload.UserID
	if userID == "" {
		if header, ok := headerValue(msg, "user_id"); ok {
			userID = string(header)
		}
	}
	if userID == "" {
		return Message{}, errors.New("missing user_id")
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: string(eventType),
		UserID:    userID,
		Payload:   payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
