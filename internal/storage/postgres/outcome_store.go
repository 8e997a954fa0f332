// Package postgres provides the Postgres-backed outcome ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTablePrefix = "harvest"

// OutcomeStoreConfig controls the Postgres connection pool used for ledger rows.
type OutcomeStoreConfig struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// OutcomeStore writes run summaries and outcome rows into Postgres.
type OutcomeStore struct {
	pool          dbPool
	runsTable     string
	outcomesTable string
}

// NewOutcomeStore creates a Postgres-backed OutcomeStore using the provided config.
func NewOutcomeStore(ctx context.Context, cfg OutcomeStoreConfig) (*OutcomeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewOutcomeStoreWithPool(pgPool, cfg.TablePrefix)
	if err != nil {
		pgPool.Close()
		return nil, err
	}
	return store, nil
}

// NewOutcomeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewOutcomeStoreWithPool(p dbPool, tablePrefix string) (*OutcomeStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if tablePrefix == "" {
		tablePrefix = defaultTablePrefix
	}
	if !validTableName.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}
	return &OutcomeStore{
		pool:          p,
		runsTable:     tablePrefix + "_runs",
		outcomesTable: tablePrefix + "_outcomes",
	}, nil
}

// Close releases the underlying pool resources.
func (s *OutcomeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity for the readiness endpoint.
func (s *OutcomeStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the ledger tables when they do not exist.
func (s *OutcomeStore) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	items INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
)`, s.runsTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	key TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	reason TEXT,
	title TEXT NOT NULL,
	source_url TEXT,
	uri TEXT,
	bytes BIGINT NOT NULL DEFAULT 0,
	sha256 TEXT,
	partition INTEGER NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, key)
)`, s.outcomesTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// RecordRun upserts a run summary row.
func (s *OutcomeStore) RecordRun(ctx context.Context, run crawler.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("outcome store is not configured")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, state, started_at, finished_at, items, succeeded, failed)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	finished_at = EXCLUDED.finished_at,
	items = EXCLUDED.items,
	succeeded = EXCLUDED.succeeded,
	failed = EXCLUDED.failed`, s.runsTable)

	if _, err := s.pool.Exec(ctx, query,
		run.ID,
		run.State,
		run.StartedAt,
		run.FinishedAt,
		run.Items,
		run.Succeeded,
		run.Failed,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// RecordOutcomes upserts one row per outcome; a repeated key replaces the earlier row.
func (s *OutcomeStore) RecordOutcomes(ctx context.Context, runID string, outcomes []crawler.DownloadOutcome) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("outcome store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, key, success, reason, title, source_url, uri, bytes, sha256, partition, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, key) DO UPDATE SET
	success = EXCLUDED.success,
	reason = EXCLUDED.reason,
	title = EXCLUDED.title,
	source_url = EXCLUDED.source_url,
	uri = EXCLUDED.uri,
	bytes = EXCLUDED.bytes,
	sha256 = EXCLUDED.sha256,
	partition = EXCLUDED.partition,
	recorded_at = EXCLUDED.recorded_at`, s.outcomesTable)

	for _, o := range outcomes {
		if _, err := s.pool.Exec(ctx, query,
			runID,
			o.Key,
			o.Success,
			o.Reason,
			o.Title,
			o.SourceURL,
			o.URI,
			o.Bytes,
			o.SHA256,
			o.Partition,
			o.At,
		); err != nil {
			return fmt.Errorf("insert outcome %q: %w", o.Key, err)
		}
	}
	return nil
}

// GetRun loads one run summary. Unknown IDs return crawler.ErrRunNotFound.
func (s *OutcomeStore) GetRun(ctx context.Context, runID string) (crawler.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT id, state, started_at, COALESCE(finished_at, started_at), items, succeeded, failed
FROM %s WHERE id = $1`, s.runsTable)

	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.RunRecord{}, crawler.ErrRunNotFound
		}
		return crawler.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns run summaries newest first.
func (s *OutcomeStore) ListRuns(ctx context.Context, limit, offset int) ([]crawler.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT id, state, started_at, COALESCE(finished_at, started_at), items, succeeded, failed
FROM %s ORDER BY started_at DESC LIMIT $1 OFFSET $2`, s.runsTable)

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []crawler.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListOutcomes returns the outcomes of a run sorted by key.
func (s *OutcomeStore) ListOutcomes(ctx context.Context, runID string) ([]crawler.DownloadOutcome, error) {
	query := fmt.Sprintf(`
SELECT key, success, COALESCE(reason, ''), title, COALESCE(source_url, ''), COALESCE(uri, ''),
	bytes, COALESCE(sha256, ''), partition, recorded_at
FROM %s WHERE run_id = $1 ORDER BY key`, s.outcomesTable)

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []crawler.DownloadOutcome{}
	for rows.Next() {
		var o crawler.DownloadOutcome
		if err := rows.Scan(
			&o.Key,
			&o.Success,
			&o.Reason,
			&o.Title,
			&o.SourceURL,
			&o.URI,
			&o.Bytes,
			&o.SHA256,
			&o.Partition,
			&o.At,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

func scanRun(row pgx.Row) (crawler.RunRecord, error) {
	var run crawler.RunRecord
	if err := row.Scan(&run.ID, &run.State, &run.StartedAt, &run.FinishedAt, &run.Items, &run.Succeeded, &run.Failed); err != nil {
		return crawler.RunRecord{}, err
	}
	return run, nil
}
