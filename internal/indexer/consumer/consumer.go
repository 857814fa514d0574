// Package consumer reacts to index-published events from Kafka by reloading
// the affected book, so a new site build goes live without a restart.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// EventType is the event-type header carried by IndexPublished messages.
const EventType = "index_published"

// IndexPublished announces that a new payload for Book is available at its
// configured source. Generation, when set, lets replicas that already serve
// it skip the reload.
type IndexPublished struct {
	Book        string    `json:"book"`
	Generation  string    `json:"generation,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Books resolves a book by name; *catalog.Catalog satisfies it.
type Books interface {
	Get(name string) (*catalog.Book, error)
}

// ReloadConsumer wraps a Kafka consumer that drives index reloads.
type ReloadConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a ReloadConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *ReloadConsumer {
	return &ReloadConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "reload-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (rc *ReloadConsumer) Start(ctx context.Context) error {
	rc.logger.Info("reload consumer starting")
	return rc.consumer.Start(ctx)
}

func (rc *ReloadConsumer) Close() error {
	return rc.consumer.Close()
}

// HandleMessage returns a Kafka MessageHandler that reloads the book named
// in each event. Undecodable events and unknown books are logged and
// skipped; a failed reload is returned so the offset is not committed.
func HandleMessage(books Books) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[IndexPublished](msg.Value)
		if err != nil {
			logger.Error("failed to decode index-published event",
				"error", err,
				"key", string(msg.Key),
			)
			return nil
		}

		book, err := books.Get(event.Book)
		if err != nil {
			logger.Warn("index-published event for unknown book", "book", event.Book)
			return nil
		}

		if event.Generation != "" {
			if store, err := book.Engine.Current(); err == nil && store.Generation() == event.Generation {
				logger.Debug("generation already active", "book", book.Name, "generation", event.Generation)
				return nil
			}
		}

		ev, err := book.Engine.Reload(ctx)
		if err != nil {
			return fmt.Errorf("reloading book %s: %w", book.Name, err)
		}
		logger.Info("index-published event applied",
			"book", book.Name,
			"status", ev.Status,
			"generation", ev.Generation,
			"published_at", event.PublishedAt,
		)
		return nil
	}
}
