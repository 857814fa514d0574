// Package session tracks interactive search sessions, such as a search box
// that queries on every keystroke. Starting a query in a session cancels
// the one still running for it.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type entry struct {
	id     uint64
	cancel context.CancelCauseFunc
}

type Tracker struct {
	mu         sync.Mutex
	active     map[string]entry
	next       uint64
	superseded atomic.Int64
	logger     *slog.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]entry),
		logger: slog.Default().With("component", "session-tracker"),
	}
}

// Begin derives the context a query of session runs under. The query
// previously running for the same session is cancelled with cause
// apperrors.ErrSuperseded. The returned func must be called when the query
// finishes. An empty session opts out of tracking.
func (t *Tracker) Begin(ctx context.Context, session string) (context.Context, func()) {
	if session == "" {
		return ctx, func() {}
	}
	qctx, cancel := context.WithCancelCause(ctx)

	t.mu.Lock()
	t.next++
	id := t.next
	prev, had := t.active[session]
	t.active[session] = entry{id: id, cancel: cancel}
	t.mu.Unlock()

	if had {
		prev.cancel(apperrors.ErrSuperseded)
		t.superseded.Add(1)
		t.logger.Debug("query superseded", "session", session, "query_seq", prev.id)
	}

	return qctx, func() {
		t.mu.Lock()
		if cur, ok := t.active[session]; ok && cur.id == id {
			delete(t.active, session)
		}
		t.mu.Unlock()
		cancel(nil)
	}
}

// Active returns the number of sessions with a query in flight.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Superseded returns how many queries were cancelled by a newer one.
func (t *Tracker) Superseded() int64 {
	return t.superseded.Load()
}
