package store

import (
	"context"
	"time"
)

// DocumentRepository persists documents and their aliases.
type DocumentRepository interface {
	// GetDocumentByCanonicalURL returns ErrNotFound when no document matches.
	GetDocumentByCanonicalURL(ctx context.Context, canonicalURL string) (Document, error)
	// GetDocumentBySourceURL returns ErrNotFound when no document matches.
	GetDocumentBySourceURL(ctx context.Context, sourceURL string) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	// CreateDocument inserts a new row and returns ErrConflict on a duplicate
	// source or canonical URL. ID and timestamps are assigned when empty.
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	// UpdateLineage replaces the lineage list and backfills canonical_url when
	// it is still null.
	UpdateLineage(ctx context.Context, id string, canonicalURL string, lineage []LineageEntry) error
	// UpsertStatus sets status on the document with sourceURL, creating a
	// minimal record when none exists.
	UpsertStatus(ctx context.Context, sourceURL, canonicalURL, title string, status DocumentStatus) (Document, error)
	SetStatus(ctx context.Context, id string, status DocumentStatus) error
	SaveExtraction(ctx context.Context, id string, update ExtractionUpdate) error
	TouchFetch(ctx context.Context, id string, touch FetchTouch) error
	// ListByStatus returns up to limit documents in the given statuses, oldest first.
	ListByStatus(ctx context.Context, statuses []DocumentStatus, limit int) ([]Document, error)
	// UpsertAlias inserts or refreshes an alias and reports whether it was new.
	UpsertAlias(ctx context.Context, alias Alias) (bool, error)
}

// RunRepository persists discovery runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run DiscoveryRun) (DiscoveryRun, error)
	// CompleteRun sets counters and completed_at once.
	CompleteRun(ctx context.Context, id string, counters RunCounters, completedAt time.Time) error
	GetRun(ctx context.Context, id string) (DiscoveryRun, error)
}

// JobLogRepository appends job log rows.
type JobLogRepository interface {
	AppendJobLogs(ctx context.Context, entries []JobLog) error
}

// JobLog models one job_logs row.
type JobLog struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog is the full persistence surface used by the service.
type Catalog interface {
	DocumentRepository
	RunRepository
	JobLogRepository
	Close()
}
