// Command analytics aggregates the search and reload events that searchers
// publish to Kafka and serves the result at GET /api/v1/analytics.
//
// With PostgreSQL reachable, counters are restored from the newest snapshot
// at startup and snapshotted on an interval; snapshots older than the
// retention window are pruned. Without a snapshot to restore, a new
// consumer group replays the topic from its oldest retained event.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// maxLag is the consumer backlog above which readiness reports degraded.
const maxLag = 10000

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	var snapshots analytics.SnapshotLister
	restored := false
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.Migrate(ctx, "analytics", aggregator.Schema); err != nil {
			return err
		}
		store := aggregator.NewStore(db.DB)
		if restored, err = store.Restore(ctx, agg); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval, cfg.Analytics.SnapshotRetention)
		snapshots = store
		checker.RegisterOptional("postgres", health.Ping(db.Ping))
	}

	var opts []kafka.ConsumerOption
	if !restored {
		opts = append(opts, kafka.WithFirstOffset())
	}
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg), opts...)
	defer consumer.Close()
	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		select {
		case err := <-consumerErr:
			consumerErr <- err
			return health.ComponentHealth{Status: health.StatusDown, Message: fmt.Sprintf("consumer stopped: %v", err)}
		default:
		}
		lag := consumer.Lag()
		if lag > maxLag {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("%d events behind", lag)}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d events behind", lag)}
	})
	slog.Info("analytics consumer started",
		"topic", cfg.Kafka.Topics.AnalyticsEvents,
		"restored", restored,
	)

	mux := http.NewServeMux()
	analytics.NewHandler(agg, snapshots).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("analytics service stopped")
	return nil
}
