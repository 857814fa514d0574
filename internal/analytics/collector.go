package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Collector turns search and reload outcomes into analytics events. A nil
// *Collector drops everything, so callers need no enabled check.
type Collector struct {
	batch *collector.BatchCollector
	now   func() time.Time
}

func NewCollector(batch *collector.BatchCollector) *Collector {
	return &Collector{batch: batch, now: time.Now}
}

// TrackSearch records a query outcome. The event type is derived from the
// event: superseded wins over zero_result.
func (c *Collector) TrackSearch(ev SearchEvent, superseded bool) {
	if c == nil {
		return
	}
	switch {
	case superseded:
		ev.Type = EventSuperseded
	case ev.TotalHits == 0:
		ev.Type = EventZeroResult
	default:
		ev.Type = EventSearch
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now().UTC()
	}
	c.batch.Track(kafka.Event{Key: ev.Book, Type: string(ev.Type), Value: ev})
}

// TrackReload records an index reload; it fits indexer.Engine.Subscribe.
func (c *Collector) TrackReload(ev indexer.ReloadEvent) {
	if c == nil {
		return
	}
	out := ReloadEvent{
		Type:       EventIndexReload,
		Book:       ev.Book,
		Status:     ev.Status,
		Generation: ev.Generation,
		Documents:  ev.Stats.Documents,
		Terms:      ev.Stats.Terms,
		DurationMs: ev.Duration.Milliseconds(),
		Timestamp:  c.now().UTC(),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	c.batch.Track(kafka.Event{Key: ev.Book, Type: string(out.Type), Value: out})
}
