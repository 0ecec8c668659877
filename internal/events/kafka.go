package events

import (
	"context"
	"fmt"
	"time"

	"studiotblack/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderSource    = "source"
)

// MessageWriter is the part of kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to a Kafka topic, keyed by booking id
// so that the events of one booking stay ordered.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zerolog.Logger
}

// NewKafkaWriter builds an asynchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string, logger *zerolog.Logger) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.IncEventPublished("kafka", "error")
				logger.Error().Err(err).Int("messages", len(messages)).Msg("kafka delivery failed")
				return
			}
			for range messages {
				metrics.IncEventPublished("kafka", "ok")
			}
		},
		Logger:      kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) { logger.Error().Msgf(msg, args...) }),
	}, nil
}

func NewKafkaPublisher(writer MessageWriter, logger *zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Handle is a Handler writing e to Kafka.
func (p *KafkaPublisher) Handle(ctx context.Context, e Event) error {
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: e.Payload,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(e.ID)},
			{Key: HeaderEventType, Value: []byte(e.Type)},
			{Key: HeaderSource, Value: []byte("studiotblack")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncEventPublished("kafka", "error")
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
