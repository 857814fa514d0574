package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	fail    bool
	batches [][]kafka.Event
}

func (f *fakePublisher) Publish(ctx context.Context, ev kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{ev})
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestFullBatchFlushes(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	for i := 0; i < 3; i++ {
		bc.Track(kafka.Event{Key: "k", Value: i})
	}
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 3 {
		t.Fatalf("published %d events, want 3", pub.count())
	}

	bc.Track(kafka.Event{Key: "k", Value: "tail"})
	cancel()
	bc.Close()
	if pub.count() != 4 {
		t.Errorf("final flush published %d events, want 4", pub.count())
	}
}

func TestFailedFlushRequeuesAndCaps(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 2, time.Hour)
	for i := 0; i < 8; i++ {
		bc.Track(kafka.Event{Key: "k", Value: i})
	}
	bc.Flush(context.Background())
	st := bc.Stats()
	if st.Buffered != 6 || st.Dropped != 2 || st.LastError == "" {
		t.Errorf("stats = %+v, want 6 buffered and 2 dropped", st)
	}

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.Flush(context.Background())
	if st := bc.Stats(); st.Buffered != 0 || st.Published != 6 || st.LastError != "" {
		t.Errorf("after recovery stats = %+v", st)
	}
	if first := pub.batches[0][0].Value; first != 2 {
		t.Errorf("oldest surviving event = %v, want 2", first)
	}
}

func TestOverflowKeepsRetainedEvents(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 1, time.Hour, WithRetain(func(ev kafka.Event) bool {
		return ev.Type == "index_reload"
	}))
	bc.Track(kafka.Event{Key: "handbook", Type: "index_reload", Value: "r"})
	for i := range 5 {
		bc.Track(kafka.Event{Key: "handbook", Type: "search", Value: i})
	}
	bc.Flush(context.Background())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.Flush(context.Background())

	got := pub.batches[0]
	if len(got) != 3 || got[0].Type != "index_reload" || got[1].Value != 3 {
		t.Errorf("surviving events = %+v, want the reload then searches 3 and 4", got)
	}
}
