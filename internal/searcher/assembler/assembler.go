// Package assembler turns ranked documents into display results: titles,
// links, highlight spans, object references and page snippets.
package assembler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/content"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Config struct {
	MaxResults     int
	SnippetLength  int
	SnippetContext int
}

func DefaultConfig() Config {
	return Config{MaxResults: 50, SnippetLength: 240, SnippetContext: 120}
}

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type ObjectRef struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Anchor string `json:"anchor,omitempty"`
	Exact  bool   `json:"exact"`
}

type DisplayResult struct {
	DocID             int         `json:"doc_id"`
	DocName           string      `json:"doc_name"`
	FileName          string      `json:"file_name,omitempty"`
	Title             string      `json:"title"`
	PlainTitle        string      `json:"plain_title"`
	URL               string      `json:"url"`
	Score             float64     `json:"score"`
	MatchedTerms      []string    `json:"matched_terms"`
	TitleHighlights   []Span      `json:"title_highlights,omitempty"`
	Snippet           string      `json:"snippet,omitempty"`
	SnippetHighlights []Span      `json:"snippet_highlights,omitempty"`
	Objects           []ObjectRef `json:"objects,omitempty"`
}

// Page carries the per-book settings results are rendered with.
type Page struct {
	Tokenizer  *tokenizer.Tokenizer
	LinkSuffix string
	// Content is optional; without it results carry no snippet.
	Content content.Source
}

type Assembler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Assembler {
	d := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = d.MaxResults
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = d.SnippetLength
	}
	if cfg.SnippetContext < 0 {
		cfg.SnippetContext = 0
	}
	if cfg.SnippetContext >= cfg.SnippetLength {
		cfg.SnippetContext = cfg.SnippetLength / 2
	}
	return &Assembler{
		cfg:    cfg,
		logger: slog.Default().With("component", "assembler"),
	}
}

func (a *Assembler) MaxResults() int {
	return a.cfg.MaxResults
}

// Assemble renders ranked documents in order, each document at most once,
// and stops at MaxResults.
func (a *Assembler) Assemble(ctx context.Context, set *planner.CandidateSet, ranked []ranker.ScoredDoc, page Page) ([]DisplayResult, error) {
	results := make([]DisplayResult, 0, min(len(ranked), a.cfg.MaxResults))
	if len(ranked) == 0 {
		return results, nil
	}
	tok := page.Tokenizer
	if tok == nil {
		tok = tokenizer.Default()
	}
	seen := make(map[int]struct{}, len(ranked))

	for _, sd := range ranked {
		if len(results) == a.cfg.MaxResults {
			break
		}
		if _, dup := seen[sd.DocID]; dup {
			continue
		}
		seen[sd.DocID] = struct{}{}
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}

		doc, ok := set.Store.Document(sd.DocID)
		if !ok {
			continue
		}
		m := newMatcher(set, sd.Candidate)
		r := DisplayResult{
			DocID:        doc.ID,
			DocName:      doc.Name,
			FileName:     doc.FileName,
			Title:        doc.Title,
			PlainTitle:   doc.PlainTitle,
			URL:          doc.Name + page.LinkSuffix,
			Score:        sd.Score,
			MatchedTerms: m.terms,
		}
		r.TitleHighlights = highlight(tok, doc.PlainTitle, 0, len(doc.PlainTitle), 0, m)

		if sd.Candidate != nil {
			for _, hit := range sd.Candidate.Objects {
				r.Objects = append(r.Objects, objectRef(set.Store, hit))
			}
		}
		if sd.Object != nil && sd.Object.Object.Anchor != "" {
			r.URL += "#" + sd.Object.Object.Anchor
		}

		if page.Content != nil && len(m.terms) > 0 {
			text, err := page.Content.Text(ctx, doc)
			switch {
			case err == nil:
				r.Snippet, r.SnippetHighlights = snippet(tok, text, m, a.cfg.SnippetLength, a.cfg.SnippetContext)
			case errors.Is(err, apperrors.ErrContentNotFound):
			case ctx.Err() != nil:
				return nil, context.Cause(ctx)
			default:
				a.logger.Debug("snippet skipped", "doc", doc.Name, "error", err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func objectRef(store *index.Store, hit planner.ObjectHit) ObjectRef {
	ref := ObjectRef{Name: hit.Object.Name, Anchor: hit.Object.Anchor, Exact: hit.Exact}
	if t, ok := store.ObjectType(hit.Object.TypeID); ok {
		ref.Type = t.DisplayName
		if ref.Type == "" {
			ref.Type = t.Label
		}
	}
	return ref
}

// matcher decides whether a token of rendered text belongs to a term the
// document matched on.
type matcher struct {
	terms    []string
	exact    map[string]struct{}
	prefixes []string
}

func newMatcher(set *planner.CandidateSet, c *planner.Candidate) *matcher {
	m := &matcher{exact: make(map[string]struct{})}
	if c == nil {
		return m
	}
	for _, hit := range c.Terms {
		if hit.BodyFrequency == 0 && !hit.InTitle {
			continue
		}
		m.terms = append(m.terms, hit.Term)
		match, ok := set.Match(hit.Term)
		if !ok {
			continue
		}
		switch match.Kind {
		case planner.MatchExact:
			m.exact[hit.Term] = struct{}{}
			for _, k := range match.Keys {
				m.exact[k] = struct{}{}
			}
		case planner.MatchPrefix:
			m.prefixes = append(m.prefixes, hit.Term)
		}
	}
	return m
}

func (m *matcher) match(tok tokenizer.Token) bool {
	if _, ok := m.exact[tok.Term]; ok {
		return true
	}
	if _, ok := m.exact[strings.ToLower(tok.Surface)]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(tok.Term, p) {
			return true
		}
	}
	return false
}

// highlight returns the spans of matching tokens inside text[start:end],
// relative to start and shifted by offset.
func highlight(tok *tokenizer.Tokenizer, text string, start, end, offset int, m *matcher) []Span {
	if len(m.exact) == 0 && len(m.prefixes) == 0 {
		return nil
	}
	var spans []Span
	for t := range tok.Tokens(text[start:end]) {
		if m.match(t) {
			spans = append(spans, Span{Start: t.Start + offset, End: t.End + offset})
		}
	}
	return spans
}
