package metrics

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var indexPage = template.Must(template.New("index").Parse(`<html><head><title>docsearch ops</title></head><body>
<h1>docsearch ops</h1>
<ul>{{range .}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>
</body></html>`))

// Server is the operations listener: /metrics plus whatever probes the
// binary adds. It sits outside the public middleware chain so scrapes and
// probes are never rate limited.
type Server struct {
	mux    *http.ServeMux
	paths  []string
	server *http.Server
	logger *slog.Logger
}

// NewServer serves g, or the default registry when g is nil, at /metrics
// on port.
func NewServer(port int, g prometheus.Gatherer) *Server {
	h := Handler()
	if g != nil {
		h = HandlerFor(g)
	}
	s := &Server{
		mux:    http.NewServeMux(),
		logger: slog.Default().With("component", "metrics-server"),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.Handle("/metrics", h)
	s.mux.HandleFunc("GET /{$}", s.index)
	return s
}

// Handle adds an endpoint; call it before Start.
func (s *Server) Handle(path string, h http.Handler) {
	s.mux.Handle(path, h)
	s.paths = append(s.paths, path)
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, slices.Sorted(slices.Values(s.paths))); err != nil {
		s.logger.Error("rendering index", "error", err)
	}
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.server.Addr, "paths", s.paths)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
