// Package postgres provides the Postgres-backed catalog.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docket-crawler/internal/id/uuid"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// CatalogStore implements store.Catalog on Postgres.
type CatalogStore struct {
	pool pgxIface
	now  func() time.Time
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*CatalogStore, error) {
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(pool pgxIface) *CatalogStore {
	return &CatalogStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Close releases the pool.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the catalog tables when they do not exist.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const documentColumns = `id, source_url, canonical_url, final_url, title, file_type, document_type,
	raw_text, page_count, length_chars, summary, byte_hash, text_hash, http_etag,
	http_last_modified, last_fetched_at, extraction_quality, ocr_required,
	discovery_lineage, status, created_at, updated_at`

func scanDocument(row pgx.Row) (store.Document, error) {
	var (
		doc      store.Document
		fileType string
		status   string
		lineage  []byte
	)
	err := row.Scan(
		&doc.ID, &doc.SourceURL, &doc.CanonicalURL, &doc.FinalURL, &doc.Title, &fileType, &doc.DocumentType,
		&doc.RawText, &doc.PageCount, &doc.LengthChars, &doc.Summary, &doc.ByteHash, &doc.TextHash, &doc.HTTPETag,
		&doc.HTTPLastModified, &doc.LastFetchedAt, &doc.ExtractionQuality, &doc.OCRRequired,
		&lineage, &status, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.FileType = store.FileType(fileType)
	doc.Status = store.DocumentStatus(status)
	doc.Lineage = []store.LineageEntry{}
	if len(lineage) > 0 {
		if err := json.Unmarshal(lineage, &doc.Lineage); err != nil {
			return store.Document{}, fmt.Errorf("decode lineage for %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func (s *CatalogStore) getDocument(ctx context.Context, where string, arg any) (store.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + where + ` ORDER BY created_at LIMIT 1`
	return scanDocument(s.pool.QueryRow(ctx, query, arg))
}

// GetDocumentByCanonicalURL returns the oldest document with canonicalURL.
func (s *CatalogStore) GetDocumentByCanonicalURL(ctx context.Context, canonicalURL string) (store.Document, error) {
	return s.getDocument(ctx, "canonical_url = $1", canonicalURL)
}

// GetDocumentBySourceURL returns the document first seen at sourceURL.
func (s *CatalogStore) GetDocumentBySourceURL(ctx context.Context, sourceURL string) (store.Document, error) {
	return s.getDocument(ctx, "source_url = $1", sourceURL)
}

// GetDocument fetches a document by ID.
func (s *CatalogStore) GetDocument(ctx context.Context, id string) (store.Document, error) {
	if !uuid.Valid(id) {
		return store.Document{}, store.ErrNotFound
	}
	return s.getDocument(ctx, "id = $1", id)
}

// CreateDocument inserts doc, assigning an ID and timestamps when missing.
func (s *CatalogStore) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	if doc.ID == "" {
		id, err := uuid.NewID()
		if err != nil {
			return store.Document{}, fmt.Errorf("generate document id: %w", err)
		}
		doc.ID = id
	}
	now := s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.FileType == "" {
		doc.FileType = store.FileTypeUnknown
	}
	if doc.Status == "" {
		doc.Status = store.StatusPending
	}
	if doc.Lineage == nil {
		doc.Lineage = []store.LineageEntry{}
	}
	lineage, err := json.Marshal(doc.Lineage)
	if err != nil {
		return store.Document{}, fmt.Errorf("encode lineage: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (
	id, source_url, canonical_url, final_url, title, file_type, document_type,
	raw_text, page_count, length_chars, byte_hash, text_hash, http_etag, http_last_modified,
	last_fetched_at, extraction_quality, ocr_required, discovery_lineage, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		doc.ID, doc.SourceURL, doc.CanonicalURL, doc.FinalURL, doc.Title, string(doc.FileType), doc.DocumentType,
		doc.RawText, doc.PageCount, doc.LengthChars, doc.ByteHash, doc.TextHash, doc.HTTPETag, doc.HTTPLastModified,
		doc.LastFetchedAt, doc.ExtractionQuality, doc.OCRRequired, lineage, string(doc.Status),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.Document{}, fmt.Errorf("source url %s: %w", doc.SourceURL, store.ErrConflict)
		}
		return store.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// UpdateLineage replaces the lineage list and backfills a null canonical URL.
func (s *CatalogStore) UpdateLineage(
	ctx context.Context,
	id string,
	canonicalURL string,
	lineage []store.LineageEntry,
) error {
	encoded, err := json.Marshal(lineage)
	if err != nil {
		return fmt.Errorf("encode lineage: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE documents
SET discovery_lineage = $2,
	canonical_url = COALESCE(canonical_url, $3),
	updated_at = $4
WHERE id = $1`, id, encoded, nullable(canonicalURL), s.now())
	if err != nil {
		return fmt.Errorf("update lineage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertStatus sets status by source URL, inserting a minimal row if needed.
func (s *CatalogStore) UpsertStatus(
	ctx context.Context,
	sourceURL, canonicalURL, title string,
	status store.DocumentStatus,
) (store.Document, error) {
	id, err := uuid.NewID()
	if err != nil {
		return store.Document{}, fmt.Errorf("generate document id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO documents (id, source_url, canonical_url, title, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (source_url) DO UPDATE
SET status = EXCLUDED.status,
	title = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE documents.title END,
	updated_at = EXCLUDED.updated_at
RETURNING `+documentColumns,
		id, sourceURL, nullable(canonicalURL), title, string(status), s.now())
	doc, err := scanDocument(row)
	if err != nil {
		return store.Document{}, fmt.Errorf("upsert status for %s: %w", sourceURL, err)
	}
	return doc, nil
}

// SetStatus updates only the status column.
func (s *CatalogStore) SetStatus(ctx context.Context, id string, status store.DocumentStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), s.now())
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SaveExtraction writes content, integrity and quality fields.
func (s *CatalogStore) SaveExtraction(ctx context.Context, id string, u store.ExtractionUpdate) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE documents
SET final_url = COALESCE($2, final_url),
	file_type = $3,
	raw_text = $4,
	page_count = $5,
	length_chars = $6,
	byte_hash = $7,
	text_hash = $8,
	http_etag = $9,
	http_last_modified = $10,
	last_fetched_at = $11,
	extraction_quality = $12,
	ocr_required = $13,
	status = $14,
	updated_at = $15
WHERE id = $1`,
		id, u.FinalURL, string(u.FileType), u.RawText, u.PageCount, u.LengthChars, u.ByteHash, u.TextHash,
		u.HTTPETag, u.HTTPLastModified, u.LastFetchedAt, u.ExtractionQuality, u.OCRRequired, string(u.Status),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchFetch refreshes fetch metadata; nil fields keep stored values.
func (s *CatalogStore) TouchFetch(ctx context.Context, id string, t store.FetchTouch) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE documents
SET final_url = COALESCE($2, final_url),
	http_etag = COALESCE($3, http_etag),
	http_last_modified = COALESCE($4, http_last_modified),
	last_fetched_at = $5,
	status = $6,
	updated_at = $7
WHERE id = $1`,
		id, t.FinalURL, t.HTTPETag, t.HTTPLastModified, t.LastFetchedAt, string(t.Status), s.now())
	if err != nil {
		return fmt.Errorf("touch fetch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByStatus returns up to limit documents in statuses, oldest first.
func (s *CatalogStore) ListByStatus(
	ctx context.Context,
	statuses []store.DocumentStatus,
	limit int,
) ([]store.Document, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+`
FROM documents WHERE status = ANY($1) ORDER BY created_at, id LIMIT $2`, names, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]store.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// UpsertAlias inserts an alias or refreshes last_seen; it reports whether the
// row was inserted.
func (s *CatalogStore) UpsertAlias(ctx context.Context, alias store.Alias) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
INSERT INTO url_aliases (alias_url, document_id, discovery_source, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (alias_url) DO UPDATE SET last_seen = EXCLUDED.last_seen
RETURNING (xmax = 0)`,
		alias.AliasURL, alias.DocumentID, alias.DiscoverySource, alias.FirstSeen, alias.LastSeen,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert alias: %w", err)
	}
	return inserted, nil
}

// CreateRun inserts a discovery run.
func (s *CatalogStore) CreateRun(ctx context.Context, run store.DiscoveryRun) (store.DiscoveryRun, error) {
	if run.ID == "" {
		id, err := uuid.NewID()
		if err != nil {
			return store.DiscoveryRun{}, fmt.Errorf("generate run id: %w", err)
		}
		run.ID = id
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return store.DiscoveryRun{}, fmt.Errorf("encode run config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO discovery_runs (id, source, config, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Source, cfg, run.StartedAt)
	if err != nil {
		return store.DiscoveryRun{}, fmt.Errorf("insert discovery run: %w", err)
	}
	return run, nil
}

// CompleteRun sets the final counters; a run can be completed once.
func (s *CatalogStore) CompleteRun(
	ctx context.Context,
	id string,
	counters store.RunCounters,
	completedAt time.Time,
) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE discovery_runs
SET urls_found = $2, urls_new = $3, urls_changed = $4, errors = $5, completed_at = $6
WHERE id = $1 AND completed_at IS NULL`,
		id, counters.URLsFound, counters.URLsNew, counters.URLsChanged, counters.Errors, completedAt)
	if err != nil {
		return fmt.Errorf("complete discovery run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s missing or already completed: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetRun fetches a discovery run by ID.
func (s *CatalogStore) GetRun(ctx context.Context, id string) (store.DiscoveryRun, error) {
	if !uuid.Valid(id) {
		return store.DiscoveryRun{}, store.ErrNotFound
	}
	var (
		run store.DiscoveryRun
		cfg []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, source, config, urls_found, urls_new, urls_changed, errors, started_at, completed_at
FROM discovery_runs WHERE id = $1`, id).Scan(
		&run.ID, &run.Source, &cfg,
		&run.Counters.URLsFound, &run.Counters.URLsNew, &run.Counters.URLsChanged, &run.Counters.Errors,
		&run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.DiscoveryRun{}, store.ErrNotFound
	}
	if err != nil {
		return store.DiscoveryRun{}, fmt.Errorf("get discovery run: %w", err)
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &run.Config); err != nil {
			return store.DiscoveryRun{}, fmt.Errorf("decode run config: %w", err)
		}
	}
	return run, nil
}

// AppendJobLogs copies entries into job_logs.
func (s *CatalogStore) AppendJobLogs(ctx context.Context, entries []store.JobLog) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.Type, e.Status, e.Details, e.CreatedAt})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"job_logs"},
		[]string{"type", "status", "details", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy job logs: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
