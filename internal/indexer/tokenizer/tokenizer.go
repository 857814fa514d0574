// Package tokenizer turns text into normalized index terms. The same rules
// run when a query is parsed and when titles are analyzed at load time, and
// they mirror the rules of the tool that built the index: NFC normalization,
// Unicode lowercasing, UAX#29 word segmentation, a minimum length with a
// short-term allowlist, stop-word removal and stemming.
package tokenizer

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/segment"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Token is one normalized term together with where it came from.
// Start and End are byte offsets of Surface in the analyzed text.
type Token struct {
	Term     string
	Surface  string
	Position int
	Start    int
	End      int
}

// Config selects the normalization rules. The zero value is not useful;
// start from DefaultConfig.
type Config struct {
	MinLength       int
	Allowlist       []string
	StopWords       []string
	Stemmer         string
	KeepApostrophes bool
}

func DefaultConfig() Config {
	return Config{
		MinLength: 3,
		Allowlist: []string{"ai", "ml", "ui", "ux", "io", "db", "os", "go"},
		StopWords: EnglishStopWords,
		Stemmer:   StemmerPorter,
	}
}

// Tokenizer is immutable after New and safe for concurrent use.
type Tokenizer struct {
	minLength       int
	keepApostrophes bool
	allow           map[string]struct{}
	stop            map[string]struct{}
	stem            func(string) string
}

// New builds a Tokenizer. A nil StopWords slice selects the English list;
// an empty non-nil slice disables stop-word removal.
func New(cfg Config) *Tokenizer {
	if cfg.MinLength < 1 {
		cfg.MinLength = 1
	}
	if cfg.StopWords == nil {
		cfg.StopWords = EnglishStopWords
	}
	t := &Tokenizer{
		minLength:       cfg.MinLength,
		keepApostrophes: cfg.KeepApostrophes,
		allow:           make(map[string]struct{}, len(cfg.Allowlist)),
		stop:            make(map[string]struct{}, len(cfg.StopWords)),
		stem:            stemmerFor(cfg.Stemmer),
	}
	for _, w := range cfg.Allowlist {
		t.allow[w] = struct{}{}
	}
	for _, w := range cfg.StopWords {
		t.stop[w] = struct{}{}
	}
	return t
}

var defaultTokenizer = New(DefaultConfig())

// Default returns a shared Tokenizer using DefaultConfig.
func Default() *Tokenizer {
	return defaultTokenizer
}

// Tokens yields the tokens of text lazily. The sequence can be ranged over
// any number of times.
func (t *Tokenizer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		lower := cases.Lower(language.Und)
		seg := segment.NewWordSegmenterDirect([]byte(text))
		offset, pos := 0, 0
		for seg.Segment() {
			chunk := seg.Bytes()
			start := offset
			offset += len(chunk)
			if seg.Type() == segment.None {
				continue
			}
			for _, w := range t.splitWords(chunk) {
				surface := text[start+w[0] : start+w[1]]
				term, ok := t.analyze(lower, surface)
				if !ok {
					continue
				}
				tok := Token{
					Term:     term,
					Surface:  surface,
					Position: pos,
					Start:    start + w[0],
					End:      start + w[1],
				}
				pos++
				if !yield(tok) {
					return
				}
			}
		}
	}
}

// Tokenize collects Tokens into a slice.
func (t *Tokenizer) Tokenize(text string) []Token {
	var tokens []Token
	for tok := range t.Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Terms returns only the normalized terms, in order, duplicates included.
func (t *Tokenizer) Terms(text string) []string {
	var terms []string
	for tok := range t.Tokens(text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

// Normalize analyzes a single word. It reports false when the word is
// dropped as too short or a stop word.
func (t *Tokenizer) Normalize(word string) (string, bool) {
	return t.analyze(cases.Lower(language.Und), word)
}

func (t *Tokenizer) analyze(lower cases.Caser, surface string) (string, bool) {
	word := lower.String(norm.NFC.String(surface))
	n := utf8.RuneCountInString(word)
	if n == 0 {
		return "", false
	}
	if n < t.minLength {
		if _, ok := t.allow[word]; !ok {
			return "", false
		}
	}
	if _, ok := t.stop[word]; ok {
		return "", false
	}
	stemmed := t.stem(word)
	if stemmed == "" {
		return "", false
	}
	// the stemmer must not push a word under the length floor
	if utf8.RuneCountInString(stemmed) < t.minLength && n >= t.minLength {
		stemmed = word
	}
	return stemmed, true
}

// splitWords returns [start, end) byte ranges of the word runs inside one
// segment. UAX#29 keeps "e.g" or "don't" together; the index builder does not.
func (t *Tokenizer) splitWords(chunk []byte) [][2]int {
	var (
		words [][2]int
		start = -1
	)
	for i := 0; i < len(chunk); {
		r, size := utf8.DecodeRune(chunk[i:])
		if t.isWordRune(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			words = append(words, [2]int{start, i})
			start = -1
		}
		i += size
	}
	if start >= 0 {
		words = append(words, [2]int{start, len(chunk)})
	}
	return words
}

func (t *Tokenizer) isWordRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r), r == '_':
		return true
	case r == '\'' || r == '’':
		return t.keepApostrophes
	}
	return false
}
