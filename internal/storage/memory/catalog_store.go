// Package memory provides an in-memory catalog for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/docket-crawler/internal/id/uuid"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

// CatalogStore implements store.Catalog with maps guarded by a mutex.
type CatalogStore struct {
	mu          sync.RWMutex
	docs        map[string]store.Document
	bySource    map[string]string
	byCanonical map[string]string
	aliases     map[string]store.Alias
	runs        map[string]store.DiscoveryRun
	logs        []store.JobLog
	now         func() time.Time
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		docs:        make(map[string]store.Document),
		bySource:    make(map[string]string),
		byCanonical: make(map[string]string),
		aliases:     make(map[string]store.Alias),
		runs:        make(map[string]store.DiscoveryRun),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. It returns the store for chaining.
func (s *CatalogStore) WithClock(now func() time.Time) *CatalogStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// GetDocumentByCanonicalURL looks a document up by canonical URL.
func (s *CatalogStore) GetDocumentByCanonicalURL(_ context.Context, canonicalURL string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCanonical[canonicalURL]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return cloneDocument(s.docs[id]), nil
}

// GetDocumentBySourceURL looks a document up by its first-seen URL.
func (s *CatalogStore) GetDocumentBySourceURL(_ context.Context, sourceURL string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySource[sourceURL]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return cloneDocument(s.docs[id]), nil
}

// GetDocument looks a document up by ID.
func (s *CatalogStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// CreateDocument inserts a document, rejecting duplicate source or canonical URLs.
func (s *CatalogStore) CreateDocument(_ context.Context, doc store.Document) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(doc)
}

func (s *CatalogStore) insertLocked(doc store.Document) (store.Document, error) {
	if _, exists := s.bySource[doc.SourceURL]; exists {
		return store.Document{}, fmt.Errorf("source url %s: %w", doc.SourceURL, store.ErrConflict)
	}
	if doc.CanonicalURL != nil {
		if _, exists := s.byCanonical[*doc.CanonicalURL]; exists {
			return store.Document{}, fmt.Errorf("canonical url %s: %w", *doc.CanonicalURL, store.ErrConflict)
		}
	}
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
	doc = cloneDocument(doc)
	s.docs[doc.ID] = doc
	s.bySource[doc.SourceURL] = doc.ID
	if doc.CanonicalURL != nil {
		s.byCanonical[*doc.CanonicalURL] = doc.ID
	}
	return cloneDocument(doc), nil
}

// UpdateLineage replaces lineage and backfills the canonical URL.
func (s *CatalogStore) UpdateLineage(
	_ context.Context,
	id string,
	canonicalURL string,
	lineage []store.LineageEntry,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if doc.CanonicalURL == nil && canonicalURL != "" {
		if _, taken := s.byCanonical[canonicalURL]; !taken {
			doc.CanonicalURL = &canonicalURL
			s.byCanonical[canonicalURL] = id
		}
	}
	doc.Lineage = slices.Clone(lineage)
	doc.UpdatedAt = s.now()
	s.docs[id] = doc
	return nil
}

// UpsertStatus sets the status for sourceURL, creating a minimal record if needed.
func (s *CatalogStore) UpsertStatus(
	_ context.Context,
	sourceURL, canonicalURL, title string,
	status store.DocumentStatus,
) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySource[sourceURL]; ok {
		doc := s.docs[id]
		doc.Status = status
		if title != "" {
			doc.Title = title
		}
		doc.UpdatedAt = s.now()
		s.docs[id] = doc
		return cloneDocument(doc), nil
	}
	doc := store.Document{
		SourceURL: sourceURL,
		Title:     title,
		Status:    status,
		Lineage:   []store.LineageEntry{},
	}
	if canonicalURL != "" {
		if _, taken := s.byCanonical[canonicalURL]; !taken {
			doc.CanonicalURL = &canonicalURL
		}
	}
	return s.insertLocked(doc)
}

// SetStatus updates only the status column.
func (s *CatalogStore) SetStatus(_ context.Context, id string, status store.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = s.now()
	s.docs[id] = doc
	return nil
}

// SaveExtraction writes content, integrity and quality fields.
func (s *CatalogStore) SaveExtraction(_ context.Context, id string, update store.ExtractionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if update.FinalURL != nil {
		doc.FinalURL = update.FinalURL
	}
	doc.FileType = update.FileType
	doc.RawText = update.RawText
	doc.PageCount = update.PageCount
	doc.LengthChars = update.LengthChars
	doc.ByteHash = update.ByteHash
	doc.TextHash = update.TextHash
	doc.HTTPETag = update.HTTPETag
	doc.HTTPLastModified = update.HTTPLastModified
	fetched := update.LastFetchedAt
	doc.LastFetchedAt = &fetched
	doc.ExtractionQuality = update.ExtractionQuality
	doc.OCRRequired = update.OCRRequired
	doc.Status = update.Status
	doc.UpdatedAt = s.now()
	s.docs[id] = doc
	return nil
}

// TouchFetch refreshes fetch metadata without touching content.
func (s *CatalogStore) TouchFetch(_ context.Context, id string, touch store.FetchTouch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if touch.FinalURL != nil {
		doc.FinalURL = touch.FinalURL
	}
	if touch.HTTPETag != nil {
		doc.HTTPETag = touch.HTTPETag
	}
	if touch.HTTPLastModified != nil {
		doc.HTTPLastModified = touch.HTTPLastModified
	}
	fetched := touch.LastFetchedAt
	doc.LastFetchedAt = &fetched
	doc.Status = touch.Status
	doc.UpdatedAt = s.now()
	s.docs[id] = doc
	return nil
}

// ListByStatus returns matching documents ordered by creation time.
func (s *CatalogStore) ListByStatus(
	_ context.Context,
	statuses []store.DocumentStatus,
	limit int,
) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Document, 0)
	for _, doc := range s.docs {
		if slices.Contains(statuses, doc.Status) {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertAlias inserts a new alias or refreshes LastSeen on an existing one.
func (s *CatalogStore) UpsertAlias(_ context.Context, alias store.Alias) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.aliases[alias.AliasURL]; ok {
		existing.LastSeen = alias.LastSeen
		s.aliases[alias.AliasURL] = existing
		return false, nil
	}
	s.aliases[alias.AliasURL] = alias
	return true, nil
}

// Aliases returns a copy of every stored alias.
func (s *CatalogStore) Aliases() []store.Alias {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Alias, 0, len(s.aliases))
	for _, alias := range s.aliases {
		out = append(out, alias)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AliasURL < out[j].AliasURL })
	return out
}

// Documents returns a copy of every stored document ordered by creation.
func (s *CatalogStore) Documents() []store.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, cloneDocument(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CreateRun stores a new discovery run.
func (s *CatalogStore) CreateRun(_ context.Context, run store.DiscoveryRun) (store.DiscoveryRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		id, err := uuid.NewID()
		if err != nil {
			return store.DiscoveryRun{}, fmt.Errorf("generate run id: %w", err)
		}
		run.ID = id
	}
	if _, exists := s.runs[run.ID]; exists {
		return store.DiscoveryRun{}, fmt.Errorf("run %s: %w", run.ID, store.ErrConflict)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	run.Config.Sources = slices.Clone(run.Config.Sources)
	s.runs[run.ID] = run
	return run, nil
}

// CompleteRun sets the final counters once.
func (s *CatalogStore) CompleteRun(
	_ context.Context,
	id string,
	counters store.RunCounters,
	completedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	if run.CompletedAt != nil {
		return fmt.Errorf("run %s already completed", id)
	}
	run.Counters = counters
	run.CompletedAt = &completedAt
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *CatalogStore) GetRun(_ context.Context, id string) (store.DiscoveryRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.DiscoveryRun{}, store.ErrNotFound
	}
	run.Config.Sources = slices.Clone(run.Config.Sources)
	return run, nil
}

// AppendJobLogs records job log rows.
func (s *CatalogStore) AppendJobLogs(_ context.Context, entries []store.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entries...)
	return nil
}

// JobLogs returns a copy of every appended job log row.
func (s *CatalogStore) JobLogs() []store.JobLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// Close is a no-op for the in-memory store.
func (s *CatalogStore) Close() {}

func cloneDocument(doc store.Document) store.Document {
	doc.Lineage = slices.Clone(doc.Lineage)
	return doc
}
