package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileFetchAndPublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site", "searchindex.js")
	ctx := context.Background()

	if err := Publish(ctx, path, []byte(`Search.setIndex({"docnames": []})`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	src := New(path)
	if _, ok := src.(*File); !ok {
		t.Fatalf("New(%q) = %T, want *File", path, src)
	}
	data, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(string(data), "Search.setIndex") {
		t.Errorf("Fetch = %q", data)
	}

	if err := Publish(ctx, path, []byte(`{"docnames": ["a"]}`)); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	data, err = src.Fetch(ctx)
	if err != nil || string(data) != `{"docnames": ["a"]}` {
		t.Fatalf("Fetch after republish = %q, %v", data, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestFileFetchMissing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.js")).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHTTPFetchRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"docnames": []}`))
	}))
	defer srv.Close()

	src := New(srv.URL + "/searchindex.js")
	h, ok := src.(*HTTP)
	if !ok {
		t.Fatalf("New(url) = %T, want *HTTP", src)
	}
	h.retry.InitialDelay = time.Millisecond

	data, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != `{"docnames": []}` || calls.Load() != 2 {
		t.Errorf("Fetch = %q after %d calls", data, calls.Load())
	}
}

func TestHTTPFetchNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, nil).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Fetch() = %v, want 404 error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestHTTPFetchHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, nil)
	h.retry.InitialDelay = time.Millisecond
	h.retry.MaxDelay = 20 * time.Millisecond
	var waited time.Duration
	h.retry.OnRetry = func(_ int, _ error, delay time.Duration) { waited = delay }

	if _, err := h.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if waited != 20*time.Millisecond {
		t.Errorf("delay = %v, want Retry-After capped at MaxDelay", waited)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	if d := retryAfter("7"); d != 7*time.Second {
		t.Errorf("retryAfter(7) = %v", d)
	}
	if d := retryAfter("soon"); d != 0 {
		t.Errorf("retryAfter(soon) = %v", d)
	}
}
