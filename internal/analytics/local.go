package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Local is a kafka.Publisher that hands events straight to an in-process
// Aggregator. A single searcher without Kafka uses it to still serve its
// own analytics.
type Local struct {
	mu      sync.Mutex
	handler kafka.MessageHandler
}

func NewLocal(agg *Aggregator) *Local {
	return &Local{handler: HandleEvent(agg)}
}

func (l *Local) Publish(ctx context.Context, ev kafka.Event) error {
	return l.PublishBatch(ctx, []kafka.Event{ev})
}

// PublishBatch round-trips each event through JSON so the aggregator sees
// exactly what a Kafka consumer would.
func (l *Local) PublishBatch(ctx context.Context, events []kafka.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range events {
		data, err := json.Marshal(ev.Value)
		if err != nil {
			return fmt.Errorf("marshaling event value: %w", err)
		}
		msg := kafka.Message{Key: []byte(ev.Key), Value: data, Type: ev.Type, Time: time.Now()}
		if err := l.handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
