package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d denied", i)
		}
	}
	if l.Allow("a") {
		t.Fatal("fourth request allowed")
	}
	if !l.Allow("b") {
		t.Error("keys must be independent")
	}

	now = now.Add(20 * time.Second) // one token refilled
	if !l.Allow("a") {
		t.Error("refilled token not granted")
	}
	if l.Allow("a") {
		t.Error("only one token should have refilled")
	}

	now = now.Add(10 * time.Minute)
	l.sweep()
	if l.Len() != 0 {
		t.Errorf("idle keys kept: %d", l.Len())
	}
}
