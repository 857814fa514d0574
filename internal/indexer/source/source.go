// Package source fetches published search index payloads. A file source
// coordinates with publishers through an advisory lock next to the index
// file; an HTTP source pulls the payload from the deployed site.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Source yields the raw bytes of one index payload.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// New picks an HTTP source for http(s) locations and a file source otherwise.
func New(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTP(location, nil)
	}
	return NewFile(location)
}

const lockRetryDelay = 25 * time.Millisecond

// File reads an index file under a shared lock on "<path>.lock", so a
// concurrent Publish is never observed half-written.
type File struct {
	path   string
	logger *slog.Logger
}

func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: slog.Default().With("component", "index-source", "path", path),
	}
}

func (f *File) String() string {
	return f.path
}

func (f *File) Fetch(ctx context.Context) ([]byte, error) {
	lock := flock.New(f.path + ".lock")
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	switch {
	case err != nil && errors.Is(err, fs.ErrPermission):
		// read-only deployments cannot create the lock file
		f.logger.Debug("reading index without lock", "error", err)
	case err != nil:
		return nil, fmt.Errorf("locking index %s: %w", f.path, err)
	case !locked:
		return nil, fmt.Errorf("locking index %s: %w", f.path, ctx.Err())
	default:
		defer lock.Unlock()
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", f.path, err)
	}
	return data, nil
}

// Publish atomically replaces the index file at path with data. It writes a
// temp file, syncs it and renames it over the old file while holding the
// exclusive lock.
func Publish(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking index %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("locking index %s: %w", path, ctx.Err())
	}
	defer lock.Unlock()

	tmpPath := path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// HTTP downloads the payload, retrying transient failures.
type HTTP struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

func NewHTTP(url string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{
		url:    url,
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Jitter:       0.2,
		},
	}
}

func (h *HTTP) String() string {
	return h.url
}

func (h *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	var data []byte
	err := resilience.Retry(ctx, "fetch-index", h.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
			err := fmt.Errorf("fetching %s: status %d", h.url, resp.StatusCode)
			return resilience.After(err, retryAfter(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return resilience.Permanent(fmt.Errorf("fetching %s: status %d", h.url, resp.StatusCode))
		default:
			return fmt.Errorf("fetching %s: status %d", h.url, resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching index %s: %w", h.url, err)
	}
	return data, nil
}

// retryAfter reads a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
