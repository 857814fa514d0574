// Package planner resolves a parsed query against an index Store into a
// candidate set: exact and prefix term matches intersected across terms,
// object-name hits unioned in, excluded terms removed.
package planner

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

type Config struct {
	// PrefixScanLimit caps how many index terms a prefix fallback may
	// expand to. Zero disables the fallback.
	PrefixScanLimit int
	// MinPrefixLength is the shortest token, in runes, that may fall back
	// to a prefix scan.
	MinPrefixLength   int
	ObjectPrefixLimit int
}

func DefaultConfig() Config {
	return Config{
		PrefixScanLimit:   20,
		MinPrefixLength:   3,
		ObjectPrefixLimit: 10,
	}
}

type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchPrefix
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	default:
		return "none"
	}
}

// TermMatch is how one distinct query term resolved against the index.
type TermMatch struct {
	Term string
	Kind MatchKind
	// Keys are the index keys whose postings were used.
	Keys      []string
	Body      index.PostingList
	Title     index.PostingList
	Truncated bool
}

// DocIDs returns the sorted union of body and title documents.
func (m *TermMatch) DocIDs() []int {
	return index.Union(m.Body, m.Title).DocIDs()
}

// TermHit records a term match inside one candidate document.
type TermHit struct {
	Term          string
	Kind          MatchKind
	BodyFrequency int
	InTitle       bool
}

// ObjectHit is an object whose name matched a query word.
type ObjectHit struct {
	Object         index.ObjectEntry
	Exact          bool
	SearchPriority int
}

// Candidate is one document that survived planning.
type Candidate struct {
	DocID   int
	Terms   []TermHit
	Objects []ObjectHit
}

// CandidateSet is the planner output for one query against one Store
// snapshot.
type CandidateSet struct {
	Query      *parser.Query
	Store      *index.Store
	Matches    []TermMatch
	Candidates []*Candidate
	Truncated  bool
}

func (cs *CandidateSet) Len() int {
	return len(cs.Candidates)
}

// Match returns the resolution of term, if it was part of the query.
func (cs *CandidateSet) Match(term string) (*TermMatch, bool) {
	for i := range cs.Matches {
		if cs.Matches[i].Term == term {
			return &cs.Matches[i], true
		}
	}
	return nil, false
}

// Plan builds the candidate set for q. It fails only when ctx is done.
func Plan(ctx context.Context, store *index.Store, q *parser.Query, cfg Config) (*CandidateSet, error) {
	set := &CandidateSet{Query: q, Store: store}
	if q == nil || q.Empty() {
		return set, nil
	}

	set.Matches = make([]TermMatch, 0, len(q.Terms))
	for _, term := range q.Terms {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}
		m := resolve(store, term, q.Surfaces[term], cfg)
		set.Truncated = set.Truncated || m.Truncated
		set.Matches = append(set.Matches, m)
	}

	byDoc := make(map[int]*Candidate)
	for _, docID := range intersect(set.Matches) {
		c := &Candidate{DocID: docID, Terms: make([]TermHit, 0, len(set.Matches))}
		for i := range set.Matches {
			m := &set.Matches[i]
			hit := TermHit{Term: m.Term, Kind: m.Kind}
			if p, ok := m.Body.Find(docID); ok {
				hit.BodyFrequency = p.Frequency
			}
			_, hit.InTitle = m.Title.Find(docID)
			c.Terms = append(c.Terms, hit)
		}
		byDoc[docID] = c
	}

	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	for _, hit := range objectHits(store, q, cfg) {
		c, ok := byDoc[hit.Object.DocID]
		if !ok {
			c = &Candidate{DocID: hit.Object.DocID}
			byDoc[hit.Object.DocID] = c
		}
		c.Objects = append(c.Objects, hit)
	}

	for _, term := range q.Excluded {
		for _, key := range append([]string{term}, q.Surfaces[term]...) {
			for _, p := range index.Union(store.LookupTerm(key), store.LookupTitleTerm(key)) {
				delete(byDoc, p.DocID)
			}
		}
	}

	set.Candidates = make([]*Candidate, 0, len(byDoc))
	for _, c := range byDoc {
		set.Candidates = append(set.Candidates, c)
	}
	slices.SortFunc(set.Candidates, func(a, b *Candidate) int { return a.DocID - b.DocID })
	return set, nil
}

// resolve looks term up exactly, together with the surface words that
// produced it, and falls back to a capped prefix scan when nothing matched.
func resolve(store *index.Store, term string, surfaces []string, cfg Config) TermMatch {
	m := TermMatch{Term: term}
	for _, key := range append([]string{term}, surfaces...) {
		body, title := store.LookupTerm(key), store.LookupTitleTerm(key)
		if len(body) == 0 && len(title) == 0 {
			continue
		}
		m.Keys = append(m.Keys, key)
		m.Body = index.Union(m.Body, body)
		m.Title = index.Union(m.Title, title)
	}
	if len(m.Keys) > 0 {
		m.Kind = MatchExact
		return m
	}
	if cfg.PrefixScanLimit <= 0 || utf8.RuneCountInString(term) < cfg.MinPrefixLength {
		return m
	}

	bodyKeys, bodyTrunc := store.PrefixTerms(term, cfg.PrefixScanLimit)
	titleKeys, titleTrunc := store.PrefixTitleTerms(term, cfg.PrefixScanLimit)
	m.Truncated = bodyTrunc || titleTrunc
	lists := make([]index.PostingList, 0, len(bodyKeys))
	for _, k := range bodyKeys {
		lists = append(lists, store.LookupTerm(k))
	}
	m.Body = index.Union(lists...)
	lists = lists[:0]
	for _, k := range titleKeys {
		lists = append(lists, store.LookupTitleTerm(k))
	}
	m.Title = index.Union(lists...)

	keys := append(slices.Clone(bodyKeys), titleKeys...)
	slices.Sort(keys)
	m.Keys = slices.Compact(keys)
	if len(m.Keys) > 0 {
		m.Kind = MatchPrefix
	}
	return m
}

// intersect returns the documents every match covers, starting from the
// shortest list. A match with no documents empties the result.
func intersect(matches []TermMatch) []int {
	if len(matches) == 0 {
		return nil
	}
	sets := make([][]int, len(matches))
	for i := range matches {
		sets[i] = matches[i].DocIDs()
		if len(sets[i]) == 0 {
			return nil
		}
	}
	slices.SortFunc(sets, func(a, b []int) int { return len(a) - len(b) })

	result := sets[0]
	for _, other := range sets[1:] {
		next := make([]int, 0, len(result))
		i, j := 0, 0
		for i < len(result) && j < len(other) {
			switch {
			case result[i] == other[j]:
				next = append(next, result[i])
				i++
				j++
			case result[i] < other[j]:
				i++
			default:
				j++
			}
		}
		if len(next) == 0 {
			return nil
		}
		result = next
	}
	return result
}

// objectHits looks every query word, and the whole query when it spans
// several words, up by exact name and then by prefix.
func objectHits(store *index.Store, q *parser.Query, cfg Config) []ObjectHit {
	names := slices.Clone(q.Words)
	if whole := strings.Join(q.Words, " "); len(q.Words) > 1 {
		names = append(names, whole)
	}

	type key struct {
		name   string
		docID  int
		anchor string
	}
	seen := make(map[key]struct{})
	var hits []ObjectHit
	add := func(o index.ObjectEntry, exact bool) {
		k := key{o.Name, o.DocID, o.Anchor}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		hit := ObjectHit{Object: o, Exact: exact}
		if t, ok := store.ObjectType(o.TypeID); ok {
			hit.SearchPriority = t.SearchPriority
		}
		hits = append(hits, hit)
	}

	for _, name := range names {
		for _, o := range store.LookupObject(name) {
			add(o, true)
		}
	}
	if cfg.ObjectPrefixLimit > 0 {
		for _, name := range names {
			if utf8.RuneCountInString(name) < cfg.MinPrefixLength {
				continue
			}
			entries, _ := store.PrefixObjects(name, cfg.ObjectPrefixLimit)
			for _, o := range entries {
				add(o, false)
			}
		}
	}
	return hits
}
