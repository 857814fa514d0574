package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// MalformedIndexError rejects a payload that cannot become a Store. It
// matches apperrors.ErrMalformedIndex.
type MalformedIndexError struct {
	Field  string
	Reason string
}

func (e *MalformedIndexError) Error() string {
	return fmt.Sprintf("malformed index: %s: %s", e.Field, e.Reason)
}

func (e *MalformedIndexError) Unwrap() error {
	return apperrors.ErrMalformedIndex
}

func malformed(field, format string, args ...any) error {
	return &MalformedIndexError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// payload mirrors the published JSON. encoding/json matches keys without
// regard to case, so both "docnames" and "docNames" land here.
type payload struct {
	DocNames   []string                   `json:"docnames"`
	FileNames  []string                   `json:"filenames"`
	Titles     []string                   `json:"titles"`
	Terms      map[string]rawPostings     `json:"terms"`
	TitleTerms map[string]rawPostings     `json:"titleterms"`
	Objects    map[string]json.RawMessage `json:"objects"`
	ObjTypes   map[string]json.RawMessage `json:"objtypes"`
	ObjNames   map[string]json.RawMessage `json:"objnames"`
	EnvVersion json.RawMessage            `json:"envversion"`
}

type Option func(*loadOptions)

type loadOptions struct {
	tok *tokenizer.Tokenizer
	now func() time.Time
}

// WithTokenizer sets the analyzer used to derive title terms when the
// payload has none. It must match the query tokenizer.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(o *loadOptions) { o.tok = t }
}

func withClock(now func() time.Time) Option {
	return func(o *loadOptions) { o.now = now }
}

// Decode reads a full payload from r and loads it.
func Decode(r io.Reader, opts ...Option) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading index payload: %w", err)
	}
	return Load(data, opts...)
}

// Load builds a Store from a payload, either bare JSON or wrapped in a
// Search.setIndex(...) call. Any structural problem yields a
// *MalformedIndexError and no Store.
func Load(data []byte, opts ...Option) (*Store, error) {
	o := loadOptions{tok: tokenizer.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	body, err := unwrapJSONP(data)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("payload", "%v", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	n := len(p.DocNames)
	s := &Store{
		docNames:    p.DocNames,
		fileNames:   p.FileNames,
		titles:      p.Titles,
		plainTitles: make([]string, n),
		envVersion:  p.EnvVersion,
		generation:  fingerprint(body),
		loadedAt:    o.now(),
	}
	if s.fileNames == nil {
		s.fileNames = make([]string, n)
	}
	for i, t := range p.Titles {
		s.plainTitles[i] = PlainText(t)
	}

	if s.terms, err = buildPostings("terms", p.Terms, n); err != nil {
		return nil, err
	}
	if p.TitleTerms != nil {
		if s.titleTerms, err = buildPostings("titleterms", p.TitleTerms, n); err != nil {
			return nil, err
		}
	} else {
		s.titleTerms = deriveTitleTerms(s.plainTitles, o.tok)
	}
	s.sortedTerms = sortedKeys(s.terms)
	s.sortedTitleKeys = sortedKeys(s.titleTerms)

	if s.objTypes, err = decodeObjectTypes(p.ObjTypes, p.ObjNames); err != nil {
		return nil, err
	}
	if s.objects, err = decodeObjects(p.Objects, s.objTypes, n); err != nil {
		return nil, err
	}
	s.objectKeys, s.sortedObjs = indexObjects(s.objects)
	return s, nil
}

func (p *payload) validate() error {
	switch {
	case p.DocNames == nil:
		return malformed("docNames", "missing")
	case p.Titles == nil:
		return malformed("titles", "missing")
	case p.Terms == nil:
		return malformed("terms", "missing")
	}
	if len(p.Titles) != len(p.DocNames) {
		return malformed("titles", "%d entries for %d documents", len(p.Titles), len(p.DocNames))
	}
	if p.FileNames != nil && len(p.FileNames) != len(p.DocNames) {
		return malformed("fileNames", "%d entries for %d documents", len(p.FileNames), len(p.DocNames))
	}
	return nil
}

// buildPostings lowercases keys, folding postings of keys that collide, and
// checks every document id.
func buildPostings(field string, raw map[string]rawPostings, numDocs int) (map[string]PostingList, error) {
	out := make(map[string]PostingList, len(raw))
	for term, postings := range raw {
		for _, p := range postings {
			if p.DocID < 0 || p.DocID >= numDocs {
				return nil, malformed(field, "term %q references document %d of %d", term, p.DocID, numDocs)
			}
		}
		if len(postings) == 0 {
			continue
		}
		key := strings.ToLower(term)
		pl := append(PostingList(nil), PostingList(postings)...).normalize()
		if prev, ok := out[key]; ok {
			pl = union2(prev, pl)
		}
		out[key] = pl
	}
	return out, nil
}

func deriveTitleTerms(plainTitles []string, tok *tokenizer.Tokenizer) map[string]PostingList {
	out := make(map[string]PostingList)
	for id, title := range plainTitles {
		seen := make(map[string]bool)
		for t := range tok.Tokens(title) {
			if seen[t.Term] {
				continue
			}
			seen[t.Term] = true
			out[t.Term] = append(out[t.Term], Posting{DocID: id, Frequency: 1})
		}
	}
	return out
}

var setIndexCall = []byte("Search.setIndex(")

func unwrapJSONP(data []byte) ([]byte, error) {
	body := bytes.TrimSpace(data)
	if len(body) == 0 {
		return nil, malformed("payload", "empty")
	}
	if body[0] == '{' {
		return body, nil
	}
	start := bytes.Index(body, setIndexCall)
	if start < 0 {
		start = bytes.IndexByte(body, '(')
	} else {
		start += len(setIndexCall) - 1
	}
	end := bytes.LastIndexByte(body, ')')
	if start < 0 || end <= start {
		return nil, malformed("payload", "neither a JSON object nor a Search.setIndex(...) call")
	}
	return bytes.TrimSpace(body[start+1 : end]), nil
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

var markup = regexp.MustCompile(`<[^>]*>`)

// PlainText strips markup and entities from a title and collapses
// whitespace: `<span class="section-number">1. </span>Intro` becomes
// "1. Intro".
func PlainText(title string) string {
	if !strings.ContainsAny(title, "<&") {
		return strings.Join(strings.Fields(title), " ")
	}
	stripped := html.UnescapeString(markup.ReplaceAllString(title, ""))
	return strings.Join(strings.Fields(stripped), " ")
}
