// Package handler exposes the search service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

const maxQueryLength = 1024

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Search answers GET /api/v1/search?q=&book=&limit=&session=. The session
// may also come from the X-Search-Session header.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("q")
	if len(query) > maxQueryLength {
		h.writeError(w, http.StatusBadRequest, "query too long")
		return
	}

	var limit int
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sess := r.Header.Get(middleware.SessionHeader)
	if sess == "" {
		sess = params.Get("session")
	}

	resp, err := h.svc.Search(r.Context(), service.Request{
		Book:    params.Get("book"),
		Query:   query,
		Limit:   limit,
		Session: sess,
		Source:  "http",
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"books": h.svc.Books()})
}

type reloadResult struct {
	Book       string `json:"book"`
	Status     string `json:"status"`
	Generation string `json:"generation,omitempty"`
	Previous   string `json:"previous,omitempty"`
	Documents  int    `json:"documents"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Reload answers POST /api/v1/index/reload?book=. Without a book every
// book is reloaded; a failed book keeps serving its previous index.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Reload(r.Context(), r.URL.Query().Get("book"))
	if errors.Is(err, apperrors.ErrUnknownBook) {
		h.writeFailure(w, r, err)
		return
	}
	out := make([]reloadResult, 0, len(events))
	for _, ev := range events {
		res := reloadResult{
			Book:       ev.Book,
			Status:     ev.Status,
			Generation: ev.Generation,
			Previous:   ev.Previous,
			Documents:  ev.Stats.Documents,
			DurationMs: ev.Duration.Milliseconds(),
		}
		if ev.Err != nil {
			res.Error = ev.Err.Error()
		}
		out = append(out, res)
	}
	status := http.StatusOK
	if err != nil {
		status = apperrors.HTTPStatusCode(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
	}
	h.writeJSON(w, status, map[string]any{"reloads": out})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Cache()
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := c.Stats(r.Context())
	var hitRate float64
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"entries":  stats.Entries,
		"hit_rate": hitRate,
	})
}

// CacheInvalidate answers POST /api/v1/cache/invalidate?book=.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Cache()
	if c == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	book := r.URL.Query().Get("book")
	deleted, err := c.Invalidate(r.Context(), book)
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "book", book, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	t := h.svc.Sessions()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"active":     t.Active(),
		"superseded": t.Superseded(),
	})
}

// writeFailure maps err to a status. Superseded queries answer 409 with a
// fixed body so clients can drop them silently.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperrors.ErrSuperseded) {
		h.writeError(w, http.StatusConflict, "superseded")
		return
	}
	if r.Context().Err() != nil && !errors.Is(err, apperrors.ErrTimeout) {
		// client is gone; nothing useful can be written
		return
	}
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "search failed"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
