// Package kafka carries index-published notifications and analytics events
// between docsearch processes on top of segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Message is what a MessageHandler sees of one record.
type Message struct {
	Key   []byte
	Value []byte
	// Type is the event-type header; empty for producers that do not set it.
	Type  string
	Time  time.Time
}

type MessageHandler func(ctx context.Context, msg Message) error

// Consumer feeds one topic to a MessageHandler. A handler error is retried
// with backoff; once the attempts run out the message is logged, committed
// and skipped so one bad book cannot stall the partition.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

type ConsumerOption func(*Consumer, *kafka.ReaderConfig)

// WithGroupID overrides the configured consumer group. Every searcher
// replica must see every index-published event, so each one joins its own
// group.
func WithGroupID(groupID string) ConsumerOption {
	return func(_ *Consumer, rc *kafka.ReaderConfig) { rc.GroupID = groupID }
}

// WithFirstOffset makes a new group start from the oldest retained message
// instead of the newest. The analytics service uses it to rebuild counters
// after losing its snapshot.
func WithFirstOffset() ConsumerOption {
	return func(_ *Consumer, rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(c *Consumer, _ *kafka.ReaderConfig) { c.retry = cfg }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	}
	c := &Consumer{
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	for _, opt := range opts {
		opt(c, &rc)
	}
	c.reader = kafka.NewReader(rc)
	return c
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "group", c.reader.Config().GroupID)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		msg := decodeMessage(m)
		err = resilience.Retry(ctx, "handle-"+m.Topic, c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("dropping message after handler failures",
				"partition", m.Partition,
				"offset", m.Offset,
				"key", string(m.Key),
				"type", msg.Type,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

// Lag is how many messages the reader is behind the partition head, as of
// its last fetch.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeMessage(m kafka.Message) Message {
	msg := Message{Key: m.Key, Value: m.Value, Time: m.Time}
	for _, h := range m.Headers {
		if h.Key == headerType {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
