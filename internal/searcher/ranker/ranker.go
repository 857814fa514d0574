package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/planner"
)

// Weights are the additive score contributions. There is no document
// length normalization.
type Weights struct {
	Term          float64
	PartialTerm   float64
	Title         float64
	PartialTitle  float64
	Object        float64
	ObjectPartial float64
	// ObjectPriority is added per object priority (0 important, 1 default,
	// 2 unimportant). Missing priorities add nothing.
	ObjectPriority map[int]float64
}

func DefaultWeights() Weights {
	return Weights{
		Term:           5,
		PartialTerm:    2,
		Title:          15,
		PartialTitle:   7,
		Object:         40,
		ObjectPartial:  20,
		ObjectPriority: map[int]float64{0: 15, 1: 5, 2: -5},
	}
}

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
	// Object is the hit that contributed the object score, if any.
	Object *planner.ObjectHit `json:"-"`
	// Candidate is the planner record the score was computed from.
	Candidate *planner.Candidate `json:"-"`
}

// Score sums term, title and object contributions for one candidate.
func Score(c *planner.Candidate, w Weights) float64 {
	s, _ := score(c, w)
	return s
}

func score(c *planner.Candidate, w Weights) (float64, *planner.ObjectHit) {
	var total float64
	for _, h := range c.Terms {
		switch h.Kind {
		case planner.MatchExact:
			total += float64(h.BodyFrequency) * w.Term
			if h.InTitle {
				total += w.Title
			}
		case planner.MatchPrefix:
			total += float64(h.BodyFrequency) * w.PartialTerm
			if h.InTitle {
				total += w.PartialTitle
			}
		}
	}
	best, bestScore := BestObject(c, w)
	total += bestScore
	return math.Round(total*10000) / 10000, best
}

// BestObject returns the highest-scoring object hit of c. Only one object
// hit counts per document; ties keep the first hit. Negative search
// priorities count as zero.
func BestObject(c *planner.Candidate, w Weights) (*planner.ObjectHit, float64) {
	var best *planner.ObjectHit
	var bestScore float64
	for i := range c.Objects {
		hit := &c.Objects[i]
		s := w.ObjectPartial
		if hit.Exact {
			s = w.Object
		}
		// A negative searchPriority from the payload must not sink an
		// object hit below a title hit.
		s += w.ObjectPriority[hit.Object.Priority] + max(0, float64(hit.SearchPriority))
		if best == nil || s > bestScore {
			best, bestScore = hit, s
		}
	}
	return best, bestScore
}

// Rank scores every candidate and returns them by descending score, ties
// broken by ascending DocID. A positive limit keeps only the top limit
// documents.
func Rank(set *planner.CandidateSet, w Weights, limit int) []ScoredDoc {
	if set == nil || len(set.Candidates) == 0 {
		return []ScoredDoc{}
	}
	docs := make([]ScoredDoc, 0, len(set.Candidates))
	for _, c := range set.Candidates {
		s, obj := score(c, w)
		docs = append(docs, ScoredDoc{DocID: c.DocID, Score: s, Object: obj, Candidate: c})
	}
	if limit > 0 && limit < len(docs) {
		return topK(docs, limit)
	}
	sort.Slice(docs, func(i, j int) bool {
		return better(docs[i], docs[j])
	})
	return docs
}

func better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
