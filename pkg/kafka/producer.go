package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

const (
	headerType        = "event-type"
	headerContentType = "content-type"
)

// Event is one JSON message. Key is the book name so that every event for
// a book lands on one partition and is consumed in order; Type travels as a
// header so consumers can route without decoding Value.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Publisher is the part of Producer that event emitters depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single call. Nothing is written if any
// event fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	messages := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := encode(ev, now)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w", len(messages), p.writer.Topic, err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(ev Event, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s event for %q: %w", ev.Type, ev.Key, err)
	}
	headers := []kafka.Header{{Key: headerContentType, Value: []byte("application/json")}}
	if ev.Type != "" {
		headers = append(headers, kafka.Header{Key: headerType, Value: []byte(ev.Type)})
	}
	return kafka.Message{
		Key:     []byte(ev.Key),
		Value:   value,
		Headers: headers,
		Time:    at,
	}, nil
}
