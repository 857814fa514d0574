package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// stubSource serves whatever payload was set last.
type stubSource struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func (s *stubSource) set(data string, err error) {
	s.mu.Lock()
	s.data, s.err = []byte(data), err
	s.mu.Unlock()
}

func (s *stubSource) Fetch(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.err
}

func (s *stubSource) String() string { return "stub" }

func payload(docs ...string) string {
	names, titles := "", ""
	for i, d := range docs {
		if i > 0 {
			names += ","
			titles += ","
		}
		names += fmt.Sprintf("%q", d)
		titles += fmt.Sprintf("%q", d)
	}
	return fmt.Sprintf(`{"docnames": [%s], "titles": [%s], "terms": {"rate": 0}}`, names, titles)
}

func TestEngineNotLoaded(t *testing.T) {
	e := NewEngine("book", &stubSource{}, nil)
	if _, err := e.Current(); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Fatalf("Current() error = %v, want ErrIndexNotLoaded", err)
	}
}

func TestEngineReloadLifecycle(t *testing.T) {
	src := &stubSource{}
	e := NewEngine("book", src, nil)
	var events []ReloadEvent
	e.Subscribe(func(ev ReloadEvent) { events = append(events, ev) })
	ctx := context.Background()

	src.set(payload("intro"), nil)
	ev, err := e.Reload(ctx)
	if err != nil || ev.Status != ReloadLoaded {
		t.Fatalf("first Reload = %+v, %v", ev, err)
	}
	first, _ := e.Current()

	ev, err = e.Reload(ctx)
	if err != nil || ev.Status != ReloadUnchanged {
		t.Fatalf("same payload Reload = %+v, %v", ev, err)
	}
	if cur, _ := e.Current(); cur != first {
		t.Error("unchanged payload must not swap the store")
	}

	src.set(`{"docnames": ["a"], "titles": []}`, nil)
	ev, err = e.Reload(ctx)
	if !errors.Is(err, apperrors.ErrMalformedIndex) || ev.Status != ReloadFailed {
		t.Fatalf("malformed Reload = %+v, %v", ev, err)
	}
	if cur, _ := e.Current(); cur != first {
		t.Error("failed reload must keep the previous store")
	}

	src.set("", errors.New("disk gone"))
	if _, err := e.Reload(ctx); err == nil {
		t.Fatal("fetch failure should surface")
	}

	src.set(payload("intro", "eda"), nil)
	ev, err = e.Reload(ctx)
	if err != nil || ev.Status != ReloadLoaded || ev.Previous != first.Generation() {
		t.Fatalf("second load = %+v, %v", ev, err)
	}
	if cur, _ := e.Current(); cur.NumDocuments() != 2 {
		t.Errorf("NumDocuments = %d, want 2", cur.NumDocuments())
	}

	wantStatuses := []string{ReloadLoaded, ReloadUnchanged, ReloadFailed, ReloadFailed, ReloadLoaded}
	if len(events) != len(wantStatuses) {
		t.Fatalf("got %d events, want %d", len(events), len(wantStatuses))
	}
	for i, want := range wantStatuses {
		if events[i].Status != want {
			t.Errorf("event %d status = %s, want %s", i, events[i].Status, want)
		}
	}
}

func TestEngineReadersDuringSwap(t *testing.T) {
	src := &stubSource{}
	src.set(payload("a"), nil)
	e := NewEngine("book", src, nil)
	if _, err := e.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var reads atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s, err := e.Current()
				if err != nil {
					t.Error(err)
					return
				}
				// a store is always internally consistent
				n := s.NumDocuments()
				for id := 0; id < n; id++ {
					if _, ok := s.Document(id); !ok {
						t.Errorf("document %d missing from a %d-doc store", id, n)
						return
					}
				}
				reads.Add(1)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		docs := make([]string, i%5+1)
		for j := range docs {
			docs[j] = fmt.Sprintf("doc%d", j)
		}
		src.set(payload(docs...), nil)
		if _, err := e.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.Now().Add(time.Second)
	for reads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()
	if reads.Load() == 0 {
		t.Error("readers never ran")
	}
}

func TestEngineWatch(t *testing.T) {
	src := &stubSource{}
	src.set(payload("a"), nil)
	e := NewEngine("book", src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded := make(chan struct{}, 4)
	e.Subscribe(func(ev ReloadEvent) {
		if ev.Status == ReloadLoaded {
			loaded <- struct{}{}
		}
	})
	e.StartWatch(ctx, 5*time.Millisecond)

	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("watch never loaded the index")
	}
	src.set(payload("a", "b"), nil)
	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("watch never picked up the new payload")
	}
}
