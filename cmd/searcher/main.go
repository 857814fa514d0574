// Command searcher serves documentation search over HTTP.
//
// It loads every configured book, hot-reloads them when their files change
// or an index-published event arrives, and exposes the search API, admin
// routes, health checks and the MCP endpoint on one port. Prometheus
// metrics and a second copy of the health probes are served on the ops
// port, outside rate limiting.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/auth/ratelimit"
	ingestionhandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/mcptool"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "books", len(cfg.Books), "version", version)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	a, err := app.New(ctx, cfg, app.Options{Metrics: m, Services: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if m != nil {
		ops := metrics.NewServer(cfg.Metrics.Port, nil)
		ops.Handle("/health/live", a.Health.LiveHandler())
		ops.Handle("/health/ready", a.Health.ReadyHandler())
		ops.Start()
		defer ops.Shutdown(context.WithoutCancel(ctx))
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	routes := handler.Routes{
		AdminToken: cfg.Admin.Token,
		Live:       a.Health.LiveHandler(),
		Ready:      a.Health.ReadyHandler(),
		Publish:    ingestionhandler.New(a.Publisher).Publish,
	}
	if a.Aggregator != nil {
		routes.Analytics = analytics.NewHandler(a.Aggregator, nil).Routes
	}
	if cfg.MCP.Enabled {
		routes.MCP = mcptool.HTTPHandler(mcptool.NewServer(a.Service, cfg.MCP.Name, version))
		routes.MCPPath = cfg.MCP.Path
	}
	mux := handler.Router(handler.New(a.Service), routes)

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	mw := []func(http.Handler) http.Handler{middleware.RequestID, middleware.CORS(cors)}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, time.Minute)
		limiter.StartCleanup(ctx, time.Minute)
		mw = append(mw, middleware.RateLimit(limiter))
	}
	// streaming MCP sessions outlive any per-request deadline
	mw = append(mw, middleware.Timeout(cfg.Server.WriteTimeout, cfg.MCP.Path))
	if m != nil {
		mw = append(mw, middleware.Metrics(m))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mw...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
