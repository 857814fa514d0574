// Package aggregator keeps snapshots of the analytics aggregate in
// PostgreSQL so counters survive restarts of the analytics service and
// earlier periods can be compared.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
)

// Schema holds one row per snapshot with the headline counters broken out
// for ad hoc SQL, plus per-book search counts.
const Schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	data           JSONB NOT NULL,
	total_searches BIGINT NOT NULL DEFAULT 0,
	zero_results   BIGINT NOT NULL DEFAULT 0,
	superseded     BIGINT NOT NULL DEFAULT 0,
	captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at ON analytics_snapshots (captured_at);
CREATE TABLE IF NOT EXISTS analytics_book_searches (
	snapshot_id BIGINT NOT NULL REFERENCES analytics_snapshots (id) ON DELETE CASCADE,
	book        TEXT NOT NULL,
	searches    BIGINT NOT NULL,
	PRIMARY KEY (snapshot_id, book)
)`

// Source yields the stats to snapshot; *analytics.Aggregator satisfies it.
type Source interface {
	Stats() analytics.AggregatedStats
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
		now:    time.Now,
	}
}

// SaveSnapshot writes stats and its per-book counts in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO analytics_snapshots (data, total_searches, zero_results, superseded, captured_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		data, stats.TotalSearches, stats.ZeroResultCount, stats.SupersededCount, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	for book, n := range stats.SearchesByBook {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_book_searches (snapshot_id, book, searches) VALUES ($1, $2, $3)`,
			id, book, n,
		); err != nil {
			return fmt.Errorf("saving searches for book %s: %w", book, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "id", id, "total_searches", stats.TotalSearches)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	list, err := s.ListSnapshots(ctx, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// ListSnapshots returns the last limit snapshots, newest first. Corrupt
// rows are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// BookSearches returns how many searches each book had in the newest
// snapshot taken at or before at.
func (s *Store) BookSearches(ctx context.Context, at time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.book, b.searches FROM analytics_book_searches b
		 WHERE b.snapshot_id = (
			SELECT id FROM analytics_snapshots WHERE captured_at <= $1
			ORDER BY captured_at DESC, id DESC LIMIT 1)`,
		at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying book searches: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var book string
		var n int64
		if err := rows.Scan(&book, &n); err != nil {
			return nil, fmt.Errorf("scanning book searches: %w", err)
		}
		out[book] = n
	}
	return out, rows.Err()
}

// Prune deletes snapshots captured before cutoff, always keeping the
// newest one so a restart can still restore from it.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < $1
		 AND id <> (SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1)`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Restore seeds agg from the newest snapshot. It reports false when there
// was nothing to restore.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) (bool, error) {
	latest, err := s.LatestSnapshot(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	agg.Restore(*latest)
	s.logger.Info("analytics restored from snapshot", "total_searches", latest.TotalSearches)
	return true, nil
}

// StartPeriodicSave snapshots src every interval and once more on
// shutdown. With a positive retention, older snapshots are pruned after
// each save.
func (s *Store) StartPeriodicSave(ctx context.Context, src Source, interval, retention time.Duration) {
	save := func(ctx context.Context) {
		if err := s.SaveSnapshot(ctx, src.Stats()); err != nil {
			s.logger.Error("snapshot failed", "error", err)
			return
		}
		if retention <= 0 {
			return
		}
		if n, err := s.Prune(ctx, s.now().Add(-retention)); err != nil {
			s.logger.Error("snapshot pruning failed", "error", err)
		} else if n > 0 {
			s.logger.Info("old snapshots pruned", "deleted", n)
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				save(ctx)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				save(shutdownCtx)
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", retention)
}
