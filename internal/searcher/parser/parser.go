package parser

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// Query is one parsed search request. It is owned by a single execution.
type Query struct {
	Raw string
	// Tokens are the required tokens in query order; duplicates are kept.
	Tokens []tokenizer.Token
	// Terms are the distinct required terms in first-occurrence order.
	Terms []string
	// Surfaces maps a term to the lowercased words that produced it when
	// they differ from the term itself.
	Surfaces map[string][]string
	Excluded []string
	// Words are the lowercased raw words used for object-name lookup.
	Words []string
}

// Empty reports whether nothing in the query survived tokenization.
func (q *Query) Empty() bool {
	return len(q.Terms) == 0
}

// Normalized is a canonical form of the query: two raw strings that plan
// identically produce the same value.
func (q *Query) Normalized() string {
	var b strings.Builder
	b.WriteString(strings.Join(q.Terms, " "))
	if len(q.Excluded) > 0 {
		b.WriteString(" -")
		b.WriteString(strings.Join(q.Excluded, " -"))
	}
	if len(q.Words) > 0 {
		b.WriteString(" @")
		b.WriteString(strings.Join(q.Words, " @"))
	}
	return b.String()
}

// Parse splits raw into required and excluded terms. A word prefixed with
// "-" or preceded by NOT is excluded. AND is accepted and ignored since
// every query intersects its terms.
func Parse(raw string, tok *tokenizer.Tokenizer) *Query {
	q := &Query{
		Raw:      raw,
		Surfaces: make(map[string][]string),
	}
	if tok == nil {
		tok = tokenizer.Default()
	}
	if strings.TrimSpace(raw) == "" {
		return q
	}

	seenTerm := make(map[string]struct{})
	seenExcluded := make(map[string]struct{})
	seenWord := make(map[string]struct{})
	excludeNext := false
	position := 0

	for _, word := range strings.Fields(raw) {
		switch word {
		case "AND":
			continue
		case "NOT":
			excludeNext = true
			continue
		}

		exclude := excludeNext
		excludeNext = false
		if len(word) > 1 && word[0] == '-' {
			exclude = true
			word = word[1:]
		}

		tokens := tok.Tokenize(word)
		if exclude {
			for _, t := range tokens {
				if _, ok := seenExcluded[t.Term]; !ok {
					seenExcluded[t.Term] = struct{}{}
					q.Excluded = append(q.Excluded, t.Term)
				}
				q.addSurface(t)
			}
			continue
		}
		// short or stop-word names like "pd" still look up objects
		if w := objectWord(word); w != "" {
			if _, ok := seenWord[w]; !ok {
				seenWord[w] = struct{}{}
				q.Words = append(q.Words, w)
			}
		}
		if len(tokens) == 0 {
			continue
		}

		for _, t := range tokens {
			t.Position = position
			position++
			q.Tokens = append(q.Tokens, t)
			if _, ok := seenTerm[t.Term]; !ok {
				seenTerm[t.Term] = struct{}{}
				q.Terms = append(q.Terms, t.Term)
			}
			q.addSurface(t)
		}
	}
	return q
}

func (q *Query) addSurface(t tokenizer.Token) {
	surface := strings.ToLower(t.Surface)
	if surface != t.Term && !contains(q.Surfaces[t.Term], surface) {
		q.Surfaces[t.Term] = append(q.Surfaces[t.Term], surface)
	}
}

// objectWord trims punctuation around a word while keeping the dots and
// underscores of dotted names such as "pandas.DataFrame.merge".
func objectWord(word string) string {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	return strings.ToLower(trimmed)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
