package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Posting records that a document contains a term. Indexes that carry no
// frequency information get Frequency 1.
type Posting struct {
	DocID     int `json:"doc_id"`
	Frequency int `json:"frequency"`
}

// PostingList is sorted by DocID with no duplicates.
type PostingList []Posting

func (pl PostingList) DocIDs() []int {
	ids := make([]int, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID int) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

// Union merges sorted lists, summing frequencies of shared documents.
func Union(lists ...PostingList) PostingList {
	switch len(lists) {
	case 0:
		return nil
	case 1:
		return lists[0]
	}
	out := lists[0]
	for _, l := range lists[1:] {
		out = union2(out, l)
	}
	return out
}

func union2(a, b PostingList) PostingList {
	out := make(PostingList, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].DocID == b[j].DocID:
			out = append(out, Posting{DocID: a[i].DocID, Frequency: a[i].Frequency + b[j].Frequency})
			i++
			j++
		case a[i].DocID < b[j].DocID:
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// normalize sorts by DocID and folds duplicate documents together.
func (pl PostingList) normalize() PostingList {
	if len(pl) < 2 {
		return pl
	}
	sort.SliceStable(pl, func(i, j int) bool { return pl[i].DocID < pl[j].DocID })
	out := pl[:1]
	for _, p := range pl[1:] {
		last := &out[len(out)-1]
		if p.DocID == last.DocID {
			last.Frequency += p.Frequency
			continue
		}
		out = append(out, p)
	}
	return out
}

// rawPostings accepts every posting shape published indexes use: a bare
// document id, an array of ids, or an array of [id, frequency] pairs.
type rawPostings PostingList

func (r *rawPostings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	if data[0] != '[' {
		var id int
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("posting %s: %w", data, err)
		}
		*r = rawPostings{{DocID: id, Frequency: 1}}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(rawPostings, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			var pair []int
			if err := json.Unmarshal(item, &pair); err != nil {
				return fmt.Errorf("posting pair %s: %w", item, err)
			}
			switch len(pair) {
			case 1:
				out = append(out, Posting{DocID: pair[0], Frequency: 1})
			case 2:
				out = append(out, Posting{DocID: pair[0], Frequency: max(pair[1], 1)})
			default:
				return fmt.Errorf("posting pair %s: want [docId] or [docId, frequency]", item)
			}
			continue
		}
		var id int
		if err := json.Unmarshal(item, &id); err != nil {
			return fmt.Errorf("posting %s: %w", item, err)
		}
		out = append(out, Posting{DocID: id, Frequency: 1})
	}
	*r = out
	return nil
}
