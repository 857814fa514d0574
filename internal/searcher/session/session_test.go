package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func TestBeginSupersedes(t *testing.T) {
	tr := NewTracker()
	first, doneFirst := tr.Begin(context.Background(), "s1")
	second, doneSecond := tr.Begin(context.Background(), "s1")
	defer doneSecond()

	<-first.Done()
	if cause := context.Cause(first); !errors.Is(cause, apperrors.ErrSuperseded) {
		t.Errorf("first cause = %v, want ErrSuperseded", cause)
	}
	if second.Err() != nil {
		t.Errorf("newest query cancelled: %v", second.Err())
	}

	// finishing the superseded query must not untrack the newer one
	doneFirst()
	if tr.Active() != 1 {
		t.Errorf("Active = %d, want 1", tr.Active())
	}
	if tr.Superseded() != 1 {
		t.Errorf("Superseded = %d, want 1", tr.Superseded())
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	tr := NewTracker()
	a, doneA := tr.Begin(context.Background(), "a")
	b, doneB := tr.Begin(context.Background(), "b")
	defer doneA()
	defer doneB()
	if a.Err() != nil || b.Err() != nil {
		t.Error("queries of different sessions cancelled each other")
	}
}

func TestEmptySessionUntracked(t *testing.T) {
	tr := NewTracker()
	parent := context.Background()
	ctx, done := tr.Begin(parent, "")
	if ctx != parent {
		t.Error("empty session should reuse the parent context")
	}
	done()
	if tr.Active() != 0 {
		t.Errorf("Active = %d", tr.Active())
	}
}

func TestDoneReleasesSession(t *testing.T) {
	tr := NewTracker()
	ctx, done := tr.Begin(context.Background(), "s")
	done()
	if tr.Active() != 0 {
		t.Errorf("Active = %d after done", tr.Active())
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Error("finished query context should be released")
	}
	if errors.Is(context.Cause(ctx), apperrors.ErrSuperseded) {
		t.Error("a finished query is not superseded")
	}
}

func TestConcurrentKeystrokes(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	survivors := 0
	ctxs := make(chan context.Context, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, _ := tr.Begin(context.Background(), "typing")
			ctxs <- ctx
		}()
	}
	wg.Wait()
	close(ctxs)
	for ctx := range ctxs {
		if ctx.Err() == nil {
			survivors++
		}
	}
	if survivors != 1 {
		t.Errorf("%d queries still live, want exactly 1", survivors)
	}
	if tr.Superseded() != 49 {
		t.Errorf("Superseded = %d, want 49", tr.Superseded())
	}
}
