package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenizeDefault(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stems plurals", "Categories of ratings", []string{"categori", "rate"}},
		{"drops stop words", "the model and the data", []string{"model", "data"}},
		{"drops short words", "an ox in a pen", []string{"pen"}},
		{"keeps allowlisted short terms", "AI for UX", []string{"ai", "ux"}},
		{"splits on punctuation", "e.g. app-store/reviews", []string{"app", "store", "review"}},
		{"keeps underscores", "call to_csv now", []string{"call", "to_csv", "now"}},
		{"splits apostrophes", "it's the user's choice", []string{"user", "choic"}},
		{"numbers", "released in 2023", []string{"releas", "2023"}},
		{"empty", "", nil},
		{"only stop words", "the and of", nil},
	}
	tok := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Terms(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStemGuardKeepsWord(t *testing.T) {
	tok := New(Config{MinLength: 3, Stemmer: StemmerSuffix})
	// the suffix stripper turns "ties" into "ty"
	if got := tok.Terms("ties"); !reflect.DeepEqual(got, []string{"ties"}) {
		t.Errorf("Terms(ties) = %v", got)
	}
}

func TestOffsetsAndPositions(t *testing.T) {
	tok := New(Config{MinLength: 3, Stemmer: StemmerNone, StopWords: []string{}})
	text := "Hello, Wörld! ÉCOLE"
	got := tok.Tokenize(text)
	want := []Token{
		{Term: "hello", Surface: "Hello", Position: 0, Start: 0, End: 5},
		{Term: "wörld", Surface: "Wörld", Position: 1, Start: 7, End: 13},
		{Term: "école", Surface: "ÉCOLE", Position: 2, Start: 15, End: 21},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() =\n%+v\nwant\n%+v", got, want)
	}
	for _, tk := range got {
		if text[tk.Start:tk.End] != tk.Surface {
			t.Errorf("offsets [%d,%d) do not cover %q", tk.Start, tk.End, tk.Surface)
		}
	}
}

func TestKeepApostrophes(t *testing.T) {
	tok := New(Config{MinLength: 3, Stemmer: StemmerNone, KeepApostrophes: true})
	got := tok.Tokenize("don't panic")
	if len(got) != 2 || got[0].Surface != "don't" {
		t.Fatalf("Tokenize() = %+v, want surface don't kept whole", got)
	}
}

func TestTokensRestartable(t *testing.T) {
	seq := Default().Tokens("exploratory data analysis")
	var first, second []string
	for tk := range seq {
		first = append(first, tk.Term)
	}
	for tk := range seq {
		second = append(second, tk.Term)
	}
	if len(first) != 3 || !reflect.DeepEqual(first, second) {
		t.Errorf("sequence not restartable: %v vs %v", first, second)
	}
}

func TestTokensEarlyStop(t *testing.T) {
	n := 0
	for range Default().Tokens("alpha beta gamma delta") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d tokens, want 2", n)
	}
}

func TestStemmers(t *testing.T) {
	tests := []struct {
		stemmer string
		word    string
		want    string
	}{
		{StemmerPorter, "categories", "categori"},
		{StemmerPorter, "always", "alwai"},
		{StemmerSnowball, "running", "run"},
		{StemmerSnowball, "categories", "categori"},
		{StemmerSuffix, "searching", "search"},
		{StemmerNone, "searching", "searching"},
	}
	for _, tt := range tests {
		t.Run(tt.stemmer+"/"+tt.word, func(t *testing.T) {
			got, ok := New(Config{MinLength: 3, Stemmer: tt.stemmer}).Normalize(tt.word)
			if !ok || got != tt.want {
				t.Errorf("Normalize(%q) = %q, %v; want %q", tt.word, got, ok, tt.want)
			}
		})
	}
}

func TestNormalizeDropped(t *testing.T) {
	for _, w := range []string{"the", "xy", ""} {
		if _, ok := Default().Normalize(w); ok {
			t.Errorf("Normalize(%q) should be dropped", w)
		}
	}
}
