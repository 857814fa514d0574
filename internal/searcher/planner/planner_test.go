package planner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

const bookPayload = `{
	"docnames": ["intro", "app_guide", "store_guide", "app_store", "pandas"],
	"titles": ["Intro", "App guide", "Store guide", "Publishing to the App Store", "Pandas API"],
	"terms": {
		"app": [1, 3], "store": [2, [3, 2]], "rating": [1], "review": [[2, 4]],
		"merg": 4, "tokenize": 0, "tokenizer": 0, "tokens": 4
	},
	"objects": {
		"pandas.DataFrame.merge": {"docId": 4, "type": 0, "priority": 1},
		"widget": {"docId": 0, "type": 1, "priority": 0}
	},
	"objtypes": {"0": "py:method", "1": "std:term"},
	"objnames": {"0": {"displayName": "Python method", "searchPriority": 1}, "1": ["std", "term", "glossary term"]}
}`

func load(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.Load([]byte(bookPayload))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func plan(t *testing.T, s *index.Store, raw string, cfg Config) *CandidateSet {
	t.Helper()
	set, err := Plan(context.Background(), s, parser.Parse(raw, tokenizer.Default()), cfg)
	if err != nil {
		t.Fatalf("Plan(%q): %v", raw, err)
	}
	return set
}

func docIDs(set *CandidateSet) []int {
	ids := []int{}
	for _, c := range set.Candidates {
		ids = append(ids, c.DocID)
	}
	return ids
}

func TestPlanIntersectsTerms(t *testing.T) {
	s := load(t)
	set := plan(t, s, "App Store", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("App Store candidates = %v, want [3]", got)
	}
	c := set.Candidates[0]
	if len(c.Terms) != 2 || c.Terms[1].Term != "store" || c.Terms[1].BodyFrequency != 2 || !c.Terms[1].InTitle {
		t.Errorf("term hits = %+v", c.Terms)
	}
}

func TestPlanUnmatchedTermEmptiesResult(t *testing.T) {
	s := load(t)
	if got := docIDs(plan(t, s, "app nonexistent", DefaultConfig())); len(got) != 0 {
		t.Errorf("candidates = %v, want none", got)
	}
}

func TestPlanSurfaceLookup(t *testing.T) {
	s := load(t)
	set := plan(t, s, "rating", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("rating candidates = %v, want [1]", got)
	}
	m, ok := set.Match("rate")
	if !ok || m.Kind != MatchExact || !reflect.DeepEqual(m.Keys, []string{"rating"}) {
		t.Errorf("match = %+v", m)
	}
}

func TestPlanPrefixFallback(t *testing.T) {
	s := load(t)

	set := plan(t, s, "tok", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{0, 4}) {
		t.Errorf("tok candidates = %v, want [0 4]", got)
	}
	if m, _ := set.Match("tok"); m.Kind != MatchPrefix || set.Truncated {
		t.Errorf("match = %+v truncated=%v", m, set.Truncated)
	}

	capped := DefaultConfig()
	capped.PrefixScanLimit = 2
	set = plan(t, s, "tok", capped)
	m, _ := set.Match("tok")
	if !m.Truncated || !set.Truncated || !reflect.DeepEqual(m.Keys, []string{"tokenize", "tokenizer"}) {
		t.Errorf("capped match = %+v", m)
	}
	if got := docIDs(set); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("capped candidates = %v, want [0]", got)
	}

	strict := DefaultConfig()
	strict.MinPrefixLength = 4
	if got := docIDs(plan(t, s, "tok", strict)); len(got) != 0 {
		t.Errorf("short token fell back to prefix scan: %v", got)
	}
	disabled := DefaultConfig()
	disabled.PrefixScanLimit = 0
	if got := docIDs(plan(t, s, "tok", disabled)); len(got) != 0 {
		t.Errorf("disabled fallback still matched: %v", got)
	}
}

func TestPlanExclusion(t *testing.T) {
	s := load(t)
	if got := docIDs(plan(t, s, "app -store", DefaultConfig())); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("app -store = %v, want [1]", got)
	}
	if got := docIDs(plan(t, s, "app NOT rating", DefaultConfig())); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("app NOT rating = %v, want [3]", got)
	}
}

func TestPlanObjects(t *testing.T) {
	s := load(t)

	set := plan(t, s, "merge", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{4}) {
		t.Fatalf("merge candidates = %v", got)
	}
	objs := set.Candidates[0].Objects
	if len(objs) != 1 || !objs[0].Exact || objs[0].SearchPriority != 1 || objs[0].Object.Name != "pandas.DataFrame.merge" {
		t.Errorf("objects = %+v", objs)
	}

	set = plan(t, s, "mer", DefaultConfig())
	if objs := set.Candidates[0].Objects; len(objs) != 1 || objs[0].Exact {
		t.Errorf("prefix object hit = %+v", objs)
	}

	// object-only hit: no body or title term matches
	set = plan(t, s, "widget", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("widget candidates = %v", got)
	}
	if c := set.Candidates[0]; len(c.Terms) != 0 || len(c.Objects) != 1 {
		t.Errorf("widget candidate = %+v", c)
	}

	if got := docIDs(plan(t, s, "widget -tokenizer", DefaultConfig())); len(got) != 0 {
		t.Errorf("exclusion must drop object hits too, got %v", got)
	}
}

func TestPlanShortObjectName(t *testing.T) {
	s, err := index.Load([]byte(`{
		"docnames": ["merging", "numpy"],
		"titles": ["Merging", "NumPy"],
		"terms": {"merg": [0, 1]},
		"objects": {"np": {"docId": 1, "type": 0, "priority": 1}},
		"objtypes": {"0": "py:module"},
		"objnames": {"0": {"displayName": "Python module", "searchPriority": 1}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	set := plan(t, s, "np merge", DefaultConfig())
	if got := docIDs(set); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("np merge candidates = %v", got)
	}
	objs := set.Candidates[1].Objects
	if len(objs) != 1 || !objs[0].Exact || objs[0].Object.Name != "np" {
		t.Errorf("objects = %+v, want exact np", objs)
	}
}

func TestPlanEmptyQuery(t *testing.T) {
	s := load(t)
	for _, raw := range []string{"", "   ", "the of and"} {
		set := plan(t, s, raw, DefaultConfig())
		if set.Len() != 0 || len(set.Matches) != 0 {
			t.Errorf("Plan(%q) = %d candidates", raw, set.Len())
		}
	}
}

func TestPlanCancelled(t *testing.T) {
	s := load(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Plan(ctx, s, parser.Parse("app", tokenizer.Default()), DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func BenchmarkPlan(b *testing.B) {
	s, err := index.Load([]byte(bookPayload))
	if err != nil {
		b.Fatal(err)
	}
	q := parser.Parse("app store -review", tokenizer.Default())
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Plan(ctx, s, q, DefaultConfig()); err != nil {
			b.Fatal(err)
		}
	}
}
