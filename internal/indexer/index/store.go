// Package index holds one immutable generation of a published documentation
// search index: documents in a parallel-array arena, body and title postings,
// and symbol objects. A Store never changes after Load returns it, so any
// number of queries may read it concurrently without locking.
package index

import (
	"encoding/json"
	"iter"
	"sort"
	"strings"
	"time"
)

type Document struct {
	ID         int    `json:"doc_id"`
	Name       string `json:"doc_name"`
	FileName   string `json:"file_name"`
	Title      string `json:"title"`
	PlainTitle string `json:"plain_title"`
}

// ObjectEntry is a named symbol (function, class, glossary term) located in
// a document.
type ObjectEntry struct {
	Name     string `json:"name"`
	DocID    int    `json:"doc_id"`
	TypeID   int    `json:"type"`
	Priority int    `json:"priority"`
	Anchor   string `json:"anchor,omitempty"`
}

// ObjectType describes an object type id. Label comes from objtypes
// ("py:function"); the rest from objnames.
type ObjectType struct {
	ID             int    `json:"id"`
	Label          string `json:"label,omitempty"`
	Domain         string `json:"domain,omitempty"`
	Name           string `json:"name,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	SearchPriority int    `json:"search_priority"`
}

type Stats struct {
	Documents  int             `json:"documents"`
	Terms      int             `json:"terms"`
	TitleTerms int             `json:"title_terms"`
	Objects    int             `json:"objects"`
	Generation string          `json:"generation"`
	LoadedAt   time.Time       `json:"loaded_at"`
	EnvVersion json.RawMessage `json:"env_version,omitempty"`
}

type Store struct {
	docNames    []string
	fileNames   []string
	titles      []string
	plainTitles []string

	terms           map[string]PostingList
	sortedTerms     []string
	titleTerms      map[string]PostingList
	sortedTitleKeys []string

	objects    []ObjectEntry
	objectKeys map[string][]int
	sortedObjs []string
	objTypes   map[int]ObjectType

	envVersion json.RawMessage
	generation string
	loadedAt   time.Time
}

func (s *Store) NumDocuments() int {
	return len(s.docNames)
}

func (s *Store) Document(id int) (Document, bool) {
	if id < 0 || id >= len(s.docNames) {
		return Document{}, false
	}
	return Document{
		ID:         id,
		Name:       s.docNames[id],
		FileName:   s.fileNames[id],
		Title:      s.titles[id],
		PlainTitle: s.plainTitles[id],
	}, true
}

// LookupTerm returns the body postings for an exact term.
func (s *Store) LookupTerm(term string) PostingList {
	return s.terms[term]
}

// LookupTitleTerm returns the documents whose titles contain term.
func (s *Store) LookupTitleTerm(term string) PostingList {
	return s.titleTerms[term]
}

// PrefixTerms returns up to limit body terms that strictly extend prefix, in
// lexical order. truncated reports that more terms matched.
func (s *Store) PrefixTerms(prefix string, limit int) (terms []string, truncated bool) {
	return prefixScan(s.sortedTerms, prefix, limit)
}

func (s *Store) PrefixTitleTerms(prefix string, limit int) (terms []string, truncated bool) {
	return prefixScan(s.sortedTitleKeys, prefix, limit)
}

// LookupObject matches name case-insensitively against full object names
// and against their last dotted component.
func (s *Store) LookupObject(name string) []ObjectEntry {
	return s.objectsAt(s.objectKeys[strings.ToLower(name)])
}

// PrefixObjects returns objects whose name strictly extends prefix, drawn
// from at most limit distinct names.
func (s *Store) PrefixObjects(prefix string, limit int) (entries []ObjectEntry, truncated bool) {
	keys, truncated := prefixScan(s.sortedObjs, strings.ToLower(prefix), limit)
	seen := make(map[int]struct{})
	var idx []int
	for _, k := range keys {
		for _, i := range s.objectKeys[k] {
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return s.objectsAt(idx), truncated
}

func (s *Store) ObjectType(id int) (ObjectType, bool) {
	t, ok := s.objTypes[id]
	return t, ok
}

// AllTerms yields every body term with its postings in lexical order.
func (s *Store) AllTerms() iter.Seq2[string, PostingList] {
	return func(yield func(string, PostingList) bool) {
		for _, t := range s.sortedTerms {
			if !yield(t, s.terms[t]) {
				return
			}
		}
	}
}

// AllTitleTerms is AllTerms for title postings.
func (s *Store) AllTitleTerms() iter.Seq2[string, PostingList] {
	return func(yield func(string, PostingList) bool) {
		for _, t := range s.sortedTitleKeys {
			if !yield(t, s.titleTerms[t]) {
				return
			}
		}
	}
}

// Objects yields every object in load order.
func (s *Store) Objects() iter.Seq[ObjectEntry] {
	return func(yield func(ObjectEntry) bool) {
		for _, o := range s.objects {
			if !yield(o) {
				return
			}
		}
	}
}

// Generation identifies the payload this Store was built from. Two loads of
// identical bytes share a generation.
func (s *Store) Generation() string {
	return s.generation
}

func (s *Store) Stats() Stats {
	return Stats{
		Documents:  len(s.docNames),
		Terms:      len(s.terms),
		TitleTerms: len(s.titleTerms),
		Objects:    len(s.objects),
		Generation: s.generation,
		LoadedAt:   s.loadedAt,
		EnvVersion: s.envVersion,
	}
}

func (s *Store) objectsAt(idx []int) []ObjectEntry {
	if len(idx) == 0 {
		return nil
	}
	out := make([]ObjectEntry, len(idx))
	for i, j := range idx {
		out[i] = s.objects[j]
	}
	return out
}

func prefixScan(keys []string, prefix string, limit int) ([]string, bool) {
	if limit <= 0 || prefix == "" {
		return nil, false
	}
	var matched []string
	for i := sort.SearchStrings(keys, prefix); i < len(keys) && strings.HasPrefix(keys[i], prefix); i++ {
		if keys[i] == prefix {
			continue
		}
		if len(matched) == limit {
			return matched, true
		}
		matched = append(matched, keys[i])
	}
	return matched, false
}

func sortedKeys(m map[string]PostingList) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
