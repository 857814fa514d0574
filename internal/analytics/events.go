package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventSuperseded  EventType = "superseded"
	EventIndexReload EventType = "index_reload"
)

// SearchEvent describes one answered, empty or superseded query.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Book       string    `json:"book"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Truncated  bool      `json:"truncated,omitempty"`
	Session    string    `json:"session,omitempty"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Generation string    `json:"generation,omitempty"`
}

// ReloadEvent describes one index reload attempt.
type ReloadEvent struct {
	Type       EventType `json:"type"`
	Book       string    `json:"book"`
	Status     string    `json:"status"`
	Generation string    `json:"generation,omitempty"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope is decoded first to pick the concrete event type.
type envelope struct {
	Type EventType `json:"type"`
}
