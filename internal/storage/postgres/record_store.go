// Package postgres provides a Postgres-backed crawl record store.
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

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable mirrors the Firestore collection name.
const DefaultTable = "crawled_brochures"

// RecordStoreConfig controls the Postgres connection pool used for crawl records.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RecordStore keeps one row per brochure id.
type RecordStore struct {
	pool  pool
	table string
}

const recordColumns = `brochure_id, store_id, country, scopes, crawled_at, valid_from, valid_to,
	filename, image_count, skipped_pages, COALESCE(cloud_storage_path, ''), COALESCE(content_hash, '')`

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table when it is missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	brochure_id        TEXT PRIMARY KEY,
	store_id           TEXT NOT NULL,
	country            TEXT NOT NULL,
	scopes             TEXT[] NOT NULL DEFAULT '{}',
	crawled_at         TIMESTAMPTZ NOT NULL,
	valid_from         TIMESTAMPTZ NOT NULL,
	valid_to           TIMESTAMPTZ NOT NULL,
	filename           TEXT NOT NULL,
	image_count        INTEGER NOT NULL,
	skipped_pages      INTEGER NOT NULL DEFAULT 0,
	cloud_storage_path TEXT,
	content_hash       TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Get loads the record for brochureID.
func (s *RecordStore) Get(ctx context.Context, brochureID string) (crawler.CrawlRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE brochure_id = $1`, recordColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, brochureID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlRecord{}, fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	if err != nil {
		return crawler.CrawlRecord{}, fmt.Errorf("select record %s: %w", brochureID, err)
	}
	return rec, nil
}

// Put inserts the record; an existing row for the id wins.
func (s *RecordStore) Put(ctx context.Context, record crawler.CrawlRecord) error {
	if record.BrochureID == "" {
		return fmt.Errorf("brochure id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	brochure_id,
	store_id,
	country,
	scopes,
	crawled_at,
	valid_from,
	valid_to,
	filename,
	image_count,
	skipped_pages,
	cloud_storage_path,
	content_hash
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''),NULLIF($12, '')
)
ON CONFLICT (brochure_id) DO NOTHING`, s.table)

	scopes := record.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	tag, err := s.pool.Exec(ctx, query,
		record.BrochureID,
		record.StoreID,
		record.Country,
		scopes,
		record.CrawledAt,
		record.ValidFrom,
		record.ValidTo,
		record.Filename,
		record.ImageCount,
		record.SkippedPages,
		record.CloudStoragePath,
		record.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", record.BrochureID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", crawler.ErrRecordExists, record.BrochureID)
	}
	return nil
}

// Patch updates the non-nil fields of patch. New scopes are appended in
// order, skipping ones already present.
func (s *RecordStore) Patch(ctx context.Context, brochureID string, patch crawler.RecordPatch) error {
	if patch.Empty() {
		return nil
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	cloud_storage_path = COALESCE($2, cloud_storage_path),
	image_count = COALESCE($3, image_count),
	scopes = scopes || ARRAY(SELECT x FROM unnest($4::text[]) AS x WHERE NOT x = ANY(scopes))
WHERE brochure_id = $1`, s.table)

	scopes := patch.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	tag, err := s.pool.Exec(ctx, query, brochureID, patch.CloudStoragePath, patch.ImageCount, scopes)
	if err != nil {
		return fmt.Errorf("update record %s: %w", brochureID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	return nil
}

// ListByStore returns the newest records for a store and country.
func (s *RecordStore) ListByStore(ctx context.Context, storeID, country string, limit int) ([]crawler.CrawlRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE store_id = $1 AND country = $2 ORDER BY crawled_at DESC LIMIT $3`,
		recordColumns, s.table)
	rows, err := s.pool.Query(ctx, query, storeID, country, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []crawler.CrawlRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Delete removes the row for brochureID.
func (s *RecordStore) Delete(ctx context.Context, brochureID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE brochure_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, brochureID)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", brochureID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", crawler.ErrRecordNotFound, brochureID)
	}
	return nil
}

func scanRecord(row pgx.Row) (crawler.CrawlRecord, error) {
	var rec crawler.CrawlRecord
	err := row.Scan(
		&rec.BrochureID,
		&rec.StoreID,
		&rec.Country,
		&rec.Scopes,
		&rec.CrawledAt,
		&rec.ValidFrom,
		&rec.ValidTo,
		&rec.Filename,
		&rec.ImageCount,
		&rec.SkippedPages,
		&rec.CloudStoragePath,
		&rec.ContentHash,
	)
	if err != nil {
		return crawler.CrawlRecord{}, err
	}
	rec.CrawledAt = rec.CrawledAt.UTC()
	rec.ValidFrom = rec.ValidFrom.UTC()
	rec.ValidTo = rec.ValidTo.UTC()
	return rec, nil
}
