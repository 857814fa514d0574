package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

func setup(t *testing.T) (*catalog.Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searchindex.js")
	if err := os.WriteFile(path, []byte(`{"docnames": ["a"], "titles": ["A"], "terms": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	book := &catalog.Book{Name: "handbook", Engine: indexer.NewEngine("handbook", source.NewFile(path), nil)}
	cat, err := catalog.New([]*catalog.Book{book}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.ReloadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	return cat, path
}

func event(t *testing.T, ev IndexPublished) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHandleMessageReloads(t *testing.T) {
	cat, path := setup(t)
	if err := os.WriteFile(path, []byte(`{"docnames": ["a", "b"], "titles": ["A", "B"], "terms": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	handle := HandleMessage(cat)
	msg := event(t, IndexPublished{Book: "handbook", PublishedAt: time.Now()})
	if err := handle(context.Background(), kafka.Message{Key: []byte("handbook"), Value: msg}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	store, _ := cat.Default().Engine.Current()
	if store.NumDocuments() != 2 {
		t.Errorf("NumDocuments = %d, want 2 after reload", store.NumDocuments())
	}
}

func TestHandleMessageSkips(t *testing.T) {
	cat, path := setup(t)
	before, _ := cat.Default().Engine.Current()
	handle := HandleMessage(cat)
	ctx := context.Background()

	if err := handle(ctx, kafka.Message{Value: []byte("{not json")}); err != nil {
		t.Errorf("bad payload should be skipped, got %v", err)
	}
	if err := handle(ctx, kafka.Message{Value: event(t, IndexPublished{Book: "other"})}); err != nil {
		t.Errorf("unknown book should be skipped, got %v", err)
	}

	// same generation: no reload even though the file is now broken
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := handle(ctx, kafka.Message{Value: event(t, IndexPublished{Book: "handbook", Generation: before.Generation()})}); err != nil {
		t.Errorf("active generation should be skipped, got %v", err)
	}
	if err := handle(ctx, kafka.Message{Value: event(t, IndexPublished{Book: "handbook"})}); err == nil {
		t.Error("broken payload should fail the reload")
	}
	if after, _ := cat.Default().Engine.Current(); after != before {
		t.Error("failed reload replaced the store")
	}
}
