package executor

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/assembler"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const sampleIndex = "../../indexer/index/testdata/searchindex.js"

func newExecutor(t testing.TB) *Executor {
	t.Helper()
	book := &catalog.Book{
		Name:       "handbook",
		Engine:     indexer.NewEngine("handbook", source.NewFile(sampleIndex), nil),
		LinkSuffix: ".html",
	}
	empty := &catalog.Book{Name: "empty", Engine: indexer.NewEngine("empty", nil, nil)}
	cat, err := catalog.New([]*catalog.Book{book, empty}, "handbook")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := book.Engine.Reload(context.Background()); err != nil {
		t.Fatalf("loading sample index: %v", err)
	}
	return New(cat, assembler.New(assembler.DefaultConfig()), DefaultConfig())
}

func docNames(r *SearchResult) []string {
	names := []string{}
	for _, d := range r.Results {
		names = append(names, d.DocName)
	}
	return names
}

func TestExecute(t *testing.T) {
	e := newExecutor(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"App Store", []string{"3_data/1_intro", "3_data/2_eda_stage_1"}},
		{"reviews -rating", []string{"3_data/4_eda_stage_3"}},
		{"nonexistent", []string{}},
		{"", []string{}},
		{"the of", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := e.Execute(context.Background(), tt.query, 10)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			got := docNames(res)
			if len(got) != len(tt.want) {
				t.Fatalf("results = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("result %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if res.TotalHits != len(tt.want) {
				t.Errorf("TotalHits = %d", res.TotalHits)
			}
		})
	}
}

func TestExecuteRatingTitleBonus(t *testing.T) {
	e := newExecutor(t)
	res, err := e.Search(context.Background(), "handbook", "rating", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Book != "handbook" || res.Generation == "" {
		t.Errorf("book/generation = %q/%q", res.Book, res.Generation)
	}
	if len(res.TermStats) != 1 || res.TermStats[0].Match != "exact" || res.TermStats[0].DocFreq != 3 {
		t.Errorf("term stats = %+v", res.TermStats)
	}
	var bodyOnly, titled float64
	for _, r := range res.Results {
		switch r.DocName {
		case "3_data/1_intro":
			bodyOnly = r.Score
		case "3_data/3_eda_stage_2":
			titled = r.Score
			if len(r.TitleHighlights) == 0 {
				t.Error("title match not highlighted")
			}
			if r.URL != "3_data/3_eda_stage_2.html" {
				t.Errorf("URL = %s", r.URL)
			}
		}
	}
	if titled <= bodyOnly {
		t.Errorf("title match score %v must exceed body-only score %v", titled, bodyOnly)
	}
	if _, ok := res.Timings["search.execute"]; !ok {
		t.Errorf("timings = %v", res.Timings)
	}
}

func TestExecuteDeterministic(t *testing.T) {
	e := newExecutor(t)
	encode := func() string {
		res, err := e.Execute(context.Background(), "data analysis customer", 20)
		if err != nil {
			t.Fatal(err)
		}
		res.Timings = nil
		b, _ := json.Marshal(res)
		return string(b)
	}
	first := encode()
	for i := 0; i < 10; i++ {
		if encode() != first {
			t.Fatal("repeated query produced different output")
		}
	}
}

func TestExecuteLimit(t *testing.T) {
	e := newExecutor(t)
	res, err := e.Execute(context.Background(), "data", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.TotalHits <= 1 {
		t.Errorf("results=%d total=%d", len(res.Results), res.TotalHits)
	}
	if got := e.Limit(0); got != 10 {
		t.Errorf("Limit(0) = %d", got)
	}
	if got := e.Limit(1000); got != 50 {
		t.Errorf("Limit(1000) = %d", got)
	}
}

func TestExecuteErrors(t *testing.T) {
	e := newExecutor(t)
	if _, err := e.Search(context.Background(), "nope", "data", 5); !errors.Is(err, apperrors.ErrUnknownBook) {
		t.Errorf("unknown book err = %v", err)
	}
	if _, err := e.Search(context.Background(), "empty", "data", 5); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("unloaded book err = %v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(apperrors.ErrSuperseded)
	if _, err := e.Execute(ctx, "data", 5); !errors.Is(err, apperrors.ErrSuperseded) {
		t.Errorf("superseded err = %v", err)
	}
}

func TestEveryIndexedTokenRetrievesItsDocument(t *testing.T) {
	e := newExecutor(t)
	snap, err := e.Snapshot("handbook")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	limit := snap.Store.NumDocuments()
	found := func(query string, doc index.Document) bool {
		res, err := e.Execute(ctx, query, limit)
		if err != nil {
			t.Fatalf("Execute(%q): %v", query, err)
		}
		return slices.Contains(docNames(res), doc.Name)
	}

	checked := 0
	for id := range snap.Store.NumDocuments() {
		doc, _ := snap.Store.Document(id)
		for _, tok := range snap.Tokenizer.Tokenize(doc.PlainTitle) {
			checked++
			if !found(tok.Surface, doc) {
				t.Errorf("title word %q of %s does not retrieve it", tok.Surface, doc.Name)
			}
		}
	}
	for term, postings := range snap.Store.AllTerms() {
		// only terms the tokenizer reproduces unchanged can be typed back
		if !slices.Equal(snap.Tokenizer.Terms(term), []string{term}) {
			continue
		}
		for _, p := range postings {
			doc, _ := snap.Store.Document(p.DocID)
			checked++
			if !found(term, doc) {
				t.Errorf("term %q does not retrieve %s", term, doc.Name)
			}
		}
	}
	if checked == 0 {
		t.Fatal("no tokens checked")
	}
}
