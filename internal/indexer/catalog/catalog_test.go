package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func writeIndex(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newBook(name, path string) *Book {
	return &Book{Name: name, Engine: indexer.NewEngine(name, source.NewFile(path), nil)}
}

func TestCatalogRouting(t *testing.T) {
	dir := t.TempDir()
	a := writeIndex(t, dir, "a.js", `{"docnames": ["x"], "titles": ["X"], "terms": {}}`)
	b := writeIndex(t, dir, "b.js", `{"docnames": ["y", "z"], "titles": ["Y", "Z"], "terms": {}}`)

	c, err := New([]*Book{newBook("handbook", a), newBook("api", b)}, "api")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, err := c.ReloadAll(context.Background())
	if err != nil {
		t.Fatalf("ReloadAll: %v", err)
	}
	if len(events) != 2 || events[0].Book != "handbook" || events[1].Stats.Documents != 2 {
		t.Errorf("events = %+v", events)
	}

	book, err := c.Get("")
	if err != nil || book.Name != "api" {
		t.Fatalf("Get(\"\") = %v, %v; want default api", book, err)
	}
	if _, err := c.Get("missing"); !errors.Is(err, apperrors.ErrUnknownBook) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if names := c.Books(); names[0].Name != "handbook" || names[1].Name != "api" {
		t.Error("Books() must keep configuration order")
	}
}

func TestCatalogReloadAllAttemptsEveryBook(t *testing.T) {
	dir := t.TempDir()
	good := writeIndex(t, dir, "good.js", `{"docnames": [], "titles": [], "terms": {}}`)
	c, err := New([]*Book{newBook("broken", filepath.Join(dir, "missing.js")), newBook("good", good)}, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ReloadAll(context.Background())
	if err == nil {
		t.Fatal("expected error from the broken book")
	}
	if _, err := c.Default().Engine.Current(); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("broken default book should still be unloaded, got %v", err)
	}
	book, _ := c.Get("good")
	if _, err := book.Engine.Current(); err != nil {
		t.Errorf("good book not loaded: %v", err)
	}
}

func TestCatalogValidation(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Error("empty catalog should fail")
	}
	if _, err := New([]*Book{newBook("a", "x"), newBook("a", "y")}, ""); err == nil {
		t.Error("duplicate names should fail")
	}
	if _, err := New([]*Book{newBook("a", "x")}, "b"); !errors.Is(err, apperrors.ErrUnknownBook) {
		t.Errorf("unknown default error = %v", err)
	}
}
