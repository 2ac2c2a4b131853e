// Package postgres provides the optional Postgres-backed download manifest.
// The filesystem stays the source of truth for skip decisions; the manifest
// is an audit trail of what each run did.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "downloads"

// ManifestStoreConfig controls the Postgres connection pool used for manifest rows.
type ManifestStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ManifestStore writes one row per processed image job.
type ManifestStore struct {
	pool  execCloser
	table string
}

// NewManifestStore creates a Postgres-backed ManifestStore using the provided config.
func NewManifestStore(ctx context.Context, cfg ManifestStoreConfig) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manifest.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewManifestStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewManifestStoreWithPool(pool execCloser, table string) (*ManifestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ManifestStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ManifestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record upserts the outcome for a target path. The table is expected to look like:
//
//	CREATE TABLE downloads (
//		path        TEXT PRIMARY KEY,
//		run_id      UUID NOT NULL,
//		source_url  TEXT NOT NULL,
//		status      TEXT NOT NULL,
//		bytes       BIGINT NOT NULL DEFAULT 0,
//		error_text  TEXT,
//		recorded_at TIMESTAMPTZ NOT NULL
//	);
func (s *ManifestStore) Record(ctx context.Context, rec crawler.DownloadRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if rec.Path == "" {
		return fmt.Errorf("record path is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (path, run_id, source_url, status, bytes, error_text, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (path) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	source_url = EXCLUDED.source_url,
	status = EXCLUDED.status,
	bytes = EXCLUDED.bytes,
	error_text = EXCLUDED.error_text,
	recorded_at = EXCLUDED.recorded_at`, s.table)

	args := []any{
		rec.Path,
		rec.RunID,
		rec.SourceURL,
		string(rec.Status),
		rec.Bytes,
		rec.ErrorText,
		rec.RecordedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert manifest row: %w", err)
	}
	return nil
}
