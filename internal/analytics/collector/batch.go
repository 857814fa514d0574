// Package collector buffers analytics events on the search path and hands
// them to a kafka.Publisher in batches, off the request goroutine.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Stats describes a BatchCollector's backlog and publish history.
type Stats struct {
	Buffered  int       `json:"buffered"`
	Published int64     `json:"published"`
	Dropped   int64     `json:"dropped"`
	LastFlush time.Time `json:"last_flush,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

type Option func(*BatchCollector)

// WithRetain marks events that survive a buffer overflow. Index reload
// events are rare and carry the only record of a failed build, so the
// searcher retains them and sheds search events instead.
func WithRetain(keep func(kafka.Event) bool) Option {
	return func(bc *BatchCollector) { bc.retain = keep }
}

// BatchCollector flushes when the buffer reaches batchSize events or after
// flushInterval, whichever comes first. A failed batch is put back in front
// of newer events; beyond three batches' worth the oldest are dropped.
type BatchCollector struct {
	publisher     kafka.Publisher
	batchSize     int
	flushInterval time.Duration
	retain        func(kafka.Event) bool
	logger        *slog.Logger
	done          chan struct{}
	kick          chan struct{}

	flushMu sync.Mutex
	mu      sync.Mutex
	buffer  []kafka.Event
	stats   Stats
}

func NewBatchCollector(publisher kafka.Publisher, batchSize int, flushInterval time.Duration, opts ...Option) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	bc := &BatchCollector{
		publisher:     publisher,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
		kick:          make(chan struct{}, 1),
		buffer:        make([]kafka.Event, 0, batchSize),
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Start launches the flush loop and returns. The loop makes a final flush
// once ctx is cancelled; Close waits for it.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-bc.kick:
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				bc.Flush(flushCtx)
				cancel()
				return
			}
			bc.Flush(ctx)
		}
	}()
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

// Track buffers ev. A full batch wakes the flush loop without blocking the
// search that produced the event.
func (bc *BatchCollector) Track(ev kafka.Event) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, ev)
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) Stats() Stats {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	s := bc.stats
	s.Buffered = len(bc.buffer)
	return s
}

// Flush publishes the buffered events now.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	batch := bc.buffer
	if len(batch) == 0 {
		bc.mu.Unlock()
		return
	}
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	err := bc.publisher.PublishBatch(ctx, batch)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.stats.LastFlush = time.Now()
	if err == nil {
		bc.stats.Published += int64(len(batch))
		bc.stats.LastError = ""
		bc.logger.Debug("batch flushed", "events", len(batch))
		return
	}
	bc.stats.LastError = err.Error()
	bc.logger.Error("batch flush failed", "events", len(batch), "error", err)
	bc.buffer = append(batch, bc.buffer...)
	if n := bc.shed(bc.batchSize * 3); n > 0 {
		bc.stats.Dropped += int64(n)
		bc.logger.Warn("analytics backlog full, events dropped", "dropped", n)
	}
}

// shed trims the buffer to limit events, dropping the oldest unretained
// ones first. Caller holds mu.
func (bc *BatchCollector) shed(limit int) int {
	excess := len(bc.buffer) - limit
	if excess <= 0 {
		return 0
	}
	kept := bc.buffer[:0]
	dropped := 0
	for _, ev := range bc.buffer {
		if dropped < excess && (bc.retain == nil || !bc.retain(ev)) {
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	bc.buffer = kept
	return dropped
}
