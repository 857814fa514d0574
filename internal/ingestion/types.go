// Package ingestion accepts new index builds for a book. A build is
// validated, its page text stored, the payload swapped in on disk and the
// new generation announced so running searchers reload it.
package ingestion

import "time"

const (
	StatusPublished = "published"
	StatusUnchanged = "unchanged"
)

// PublishRequest carries one build of a book's searchindex.js.
type PublishRequest struct {
	Book    string
	Payload []byte
	// Pages maps document names to plain page text used for snippets.
	Pages map[string]string
}

// PublishResponse is returned once the build is live.
type PublishResponse struct {
	Book        string    `json:"book"`
	Generation  string    `json:"generation"`
	Documents   int       `json:"documents"`
	Pages       int       `json:"pages"`
	Status      string    `json:"status"`
	PublishedAt time.Time `json:"published_at"`
}
