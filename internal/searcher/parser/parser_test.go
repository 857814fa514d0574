package parser

import (
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

func TestParse(t *testing.T) {
	tok := tokenizer.Default()
	tests := []struct {
		name     string
		raw      string
		terms    []string
		excluded []string
		words    []string
	}{
		{"empty", "   ", nil, nil, nil},
		{"stop words only", "the and of", nil, nil, []string{"the", "and", "of"}},
		{"short object name", "pd merge", []string{"merg"}, nil, []string{"pd", "merge"}},
		{"two words", "App Store", []string{"app", "store"}, nil, []string{"app", "store"}},
		{"duplicates collapse", "store stores STORE", []string{"store"}, nil, []string{"store", "stores"}},
		{"dash exclusion", "rating -review", []string{"rate"}, []string{"review"}, []string{"rating"}},
		{"NOT exclusion", "rating NOT reviews AND stage", []string{"rate", "stage"}, []string{"review"}, []string{"rating", "stage"}},
		{"dotted object name", "pandas.DataFrame.merge()", []string{"panda", "datafram", "merg"}, nil, []string{"pandas.dataframe.merge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Parse(tt.raw, tok)
			if !reflect.DeepEqual(q.Terms, tt.terms) {
				t.Errorf("Terms = %v, want %v", q.Terms, tt.terms)
			}
			if !reflect.DeepEqual(q.Excluded, tt.excluded) {
				t.Errorf("Excluded = %v, want %v", q.Excluded, tt.excluded)
			}
			if !reflect.DeepEqual(q.Words, tt.words) {
				t.Errorf("Words = %v, want %v", q.Words, tt.words)
			}
			if q.Raw != tt.raw {
				t.Errorf("Raw = %q", q.Raw)
			}
		})
	}
}

func TestParseKeepsDuplicateTokens(t *testing.T) {
	q := Parse("store store", tokenizer.Default())
	if len(q.Tokens) != 2 || q.Tokens[1].Position != 1 {
		t.Fatalf("Tokens = %+v", q.Tokens)
	}
	if q.Empty() {
		t.Error("query with terms reported empty")
	}
}

func TestParseSurfaces(t *testing.T) {
	q := Parse("Rating ratings", tokenizer.Default())
	if got := q.Surfaces["rate"]; !reflect.DeepEqual(got, []string{"rating", "ratings"}) {
		t.Errorf("Surfaces[rate] = %v", got)
	}
}

func TestNormalized(t *testing.T) {
	tok := tokenizer.Default()
	a := Parse("  Store   ratings -app", tok).Normalized()
	b := Parse("store ratings NOT app", tok).Normalized()
	if a != b {
		t.Errorf("Normalized differs: %q vs %q", a, b)
	}
	if a == Parse("store ratings", tok).Normalized() {
		t.Error("exclusions must change the normalized form")
	}
}
