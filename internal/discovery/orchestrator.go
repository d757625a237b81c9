package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/clock/system"
	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
)

// Clock supplies timestamps for lineage and run bookkeeping.
type Clock interface {
	Now() time.Time
}

// RedirectResolver resolves a URL to its post-redirect form, returning the
// input on failure.
type RedirectResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// Options select the sources and pacing for one run.
type Options struct {
	Sources []Source
	MaxHubs int
	Delay   time.Duration
	// ResolveRedirects probes non-speculative new URLs for their final location.
	ResolveRedirects bool
}

// SourceStats tallies one discoverer's contribution to a run.
type SourceStats struct {
	Found  int `json:"found"`
	Errors int `json:"errors"`
}

// Result summarizes a finished run.
type Result struct {
	RunID           string                 `json:"run_id"`
	TotalDiscovered int                    `json:"total_discovered"`
	NewDocuments    int                    `json:"new_documents"`
	ExistingUpdated int                    `json:"existing_updated"`
	AliasesCreated  int                    `json:"aliases_created"`
	Errors          int                    `json:"errors"`
	BySource        map[Source]SourceStats `json:"by_source"`
}

// Catalog is the slice of the store the orchestrator needs.
type Catalog interface {
	store.DocumentRepository
	store.RunRepository
}

// Orchestrator runs the configured discoverers in priority order and
// reconciles their output with the catalog.
type Orchestrator struct {
	discoverers map[Source]Discoverer
	catalog     Catalog
	logger      *zap.Logger
	jobs        joblog.Emitter
	clock       Clock
	resolver    RedirectResolver
	pacerFor    func(time.Duration) Pacer
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithJobLog routes run progress to emitter.
func WithJobLog(emitter joblog.Emitter) OrchestratorOption {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.jobs = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithResolver enables redirect resolution for new documents.
func WithResolver(resolver RedirectResolver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.resolver = resolver
	}
}

// WithPacerFactory replaces the per-run pacer constructor.
func WithPacerFactory(factory func(time.Duration) Pacer) OrchestratorOption {
	return func(o *Orchestrator) {
		if factory != nil {
			o.pacerFor = factory
		}
	}
}

// NewOrchestrator wires discoverers to a catalog.
func NewOrchestrator(
	catalog Catalog,
	discoverers []Discoverer,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		discoverers: make(map[Source]Discoverer, len(discoverers)),
		catalog:     catalog,
		logger:      logger,
		jobs:        joblog.Discard,
		clock:       system.New(),
		pacerFor: func(delay time.Duration) Pacer {
			return ratelimit.New(ratelimit.Config{Delay: delay})
		},
	}
	for _, d := range discoverers {
		if d != nil {
			o.discoverers[d.Source()] = d
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunDiscovery executes one discovery run. Only catalog failures on the run record
// itself are returned; per-source and per-URL failures are counted.
func (o *Orchestrator) RunDiscovery(ctx context.Context, opts Options) (Result, error) {
	ctx, span := otel.Tracer("github.com/JakeFAU/docket-crawler/internal/discovery").Start(ctx, "discovery.Run")
	defer span.End()

	sources := o.selectSources(opts.Sources)
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}

	run, err := o.catalog.CreateRun(ctx, store.DiscoveryRun{
		Source: store.JoinSources(names),
		Config: store.RunConfig{
			Sources:          names,
			MaxHubs:          opts.MaxHubs,
			DelayMs:          opts.Delay.Milliseconds(),
			ResolveRedirects: opts.ResolveRedirects,
		},
		StartedAt: o.clock.Now(),
	})
	if err != nil {
		metrics.ObserveRun("error")
		return Result{}, fmt.Errorf("create discovery run: %w", err)
	}
	o.jobs.Emit(joblog.Info(joblog.TypeDiscovery, "run %s started: sources=%s", run.ID, run.Source))

	result := Result{RunID: run.ID, BySource: make(map[Source]SourceStats, len(sources))}
	req := Request{MaxHubs: opts.MaxHubs, Pacer: o.pacerFor(opts.Delay)}

	var merged []DiscoveredURL
	for _, source := range sources {
		out, err := o.discover(ctx, source, req)
		stats := SourceStats{Found: len(out.URLs), Errors: out.Errors}
		if err != nil {
			stats.Errors++
			o.logger.Error("Discoverer failed", zap.String("source", string(source)), zap.Error(err))
			o.jobs.Emit(joblog.Error(joblog.TypeDiscovery, "%s failed: %v", source, err))
		}
		result.BySource[source] = stats
		result.Errors += stats.Errors
		metrics.ObserveDiscovered(string(source), stats.Found, stats.Errors)
		merged = append(merged, out.URLs...)
	}

	items := Dedup(merged)
	result.TotalDiscovered = len(items)
	for _, item := range items {
		o.persist(ctx, item, opts.ResolveRedirects, &result)
	}

	counters := store.RunCounters{
		URLsFound:   result.TotalDiscovered,
		URLsNew:     result.NewDocuments,
		URLsChanged: result.ExistingUpdated,
		Errors:      result.Errors,
	}
	if err := o.catalog.CompleteRun(ctx, run.ID, counters, o.clock.Now()); err != nil {
		metrics.ObserveRun("error")
		return result, fmt.Errorf("complete discovery run %s: %w", run.ID, err)
	}
	metrics.ObserveRun("success")
	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.found", result.TotalDiscovered),
		attribute.Int("run.new", result.NewDocuments),
	)
	o.logger.Info("Discovery run complete",
		zap.String("run_id", run.ID),
		zap.Int("found", result.TotalDiscovered),
		zap.Int("new", result.NewDocuments),
		zap.Int("updated", result.ExistingUpdated),
		zap.Int("aliases", result.AliasesCreated),
		zap.Int("errors", result.Errors),
	)
	o.jobs.Emit(joblog.Success(joblog.TypeDiscovery,
		"run %s complete: found=%d new=%d updated=%d aliases=%d errors=%d",
		run.ID, result.TotalDiscovered, result.NewDocuments, result.ExistingUpdated,
		result.AliasesCreated, result.Errors))
	return result, nil
}

// selectSources returns the requested sources in priority order. An empty
// request selects every registered discoverer.
func (o *Orchestrator) selectSources(requested []Source) []Source {
	want := make(map[Source]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	var out []Source
	for _, s := range PriorityOrder {
		if len(requested) > 0 && !want[s] {
			continue
		}
		if _, ok := o.discoverers[s]; !ok {
			if want[s] {
				o.logger.Warn("No discoverer registered for source", zap.String("source", string(s)))
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// discover invokes one discoverer, converting a panic into an error.
func (o *Orchestrator) discover(ctx context.Context, source Source, req Request) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Output{}
			err = fmt.Errorf("discoverer %s panicked: %v", source, r)
		}
	}()
	o.logger.Info("Running discoverer", zap.String("source", string(source)))
	return o.discoverers[source].Discover(ctx, req)
}

// Dedup keeps the first item for each canonical URL, preserving order.
func Dedup(items []DiscoveredURL) []DiscoveredURL {
	seen := make(map[string]struct{}, len(items))
	out := make([]DiscoveredURL, 0, len(items))
	for _, item := range items {
		key := urlnorm.Normalize(item.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (o *Orchestrator) persist(ctx context.Context, item DiscoveredURL, resolve bool, result *Result) {
	canonical := urlnorm.Normalize(item.URL)
	existing, err := o.lookup(ctx, canonical, item.URL)
	switch {
	case err == nil:
		if o.refresh(ctx, existing, canonical, item, result) {
			result.ExistingUpdated++
			metrics.ObserveCatalogOutcome("updated")
		}
	case errors.Is(err, store.ErrNotFound):
		o.create(ctx, canonical, item, resolve, result)
	default:
		result.Errors++
		metrics.ObserveCatalogOutcome("error")
		o.logger.Warn("Catalog lookup failed", zap.String("url", item.URL), zap.Error(err))
	}
}

func (o *Orchestrator) lookup(ctx context.Context, canonical, sourceURL string) (store.Document, error) {
	doc, err := o.catalog.GetDocumentByCanonicalURL(ctx, canonical)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return doc, err
	}
	return o.catalog.GetDocumentBySourceURL(ctx, sourceURL)
}

// refresh records a repeat sighting. It reports false when the write failed.
func (o *Orchestrator) refresh(
	ctx context.Context,
	doc store.Document,
	canonical string,
	item DiscoveredURL,
	result *Result,
) bool {
	now := o.clock.Now()
	doc.Touch(string(item.Source), item.SourceID, now)
	if err := o.catalog.UpdateLineage(ctx, doc.ID, canonical, doc.Lineage); err != nil {
		result.Errors++
		metrics.ObserveCatalogOutcome("error")
		o.logger.Warn("Lineage update failed", zap.String("document_id", doc.ID), zap.Error(err))
		return false
	}
	storedCanonical := ""
	if doc.CanonicalURL != nil {
		storedCanonical = *doc.CanonicalURL
	}
	if item.URL == doc.SourceURL || item.URL == storedCanonical {
		return true
	}
	created, err := o.catalog.UpsertAlias(ctx, store.Alias{
		AliasURL:        item.URL,
		DocumentID:      doc.ID,
		DiscoverySource: string(item.Source),
		FirstSeen:       now,
		LastSeen:        now,
	})
	if err != nil {
		o.logger.Warn("Alias upsert failed", zap.String("alias", item.URL), zap.Error(err))
		return true
	}
	if created {
		result.AliasesCreated++
	}
	return true
}

func (o *Orchestrator) create(ctx context.Context, canonical string, item DiscoveredURL, resolve bool, result *Result) {
	now := o.clock.Now()
	fileType := item.FileType
	if fileType == "" {
		fileType = FileTypeFromURL(item.URL)
	}
	doc := store.Document{
		SourceURL:    item.URL,
		CanonicalURL: &canonical,
		Title:        item.Title,
		FileType:     fileType,
		DocumentType: ClassifyDocumentType(item.URL),
		Status:       store.StatusPending,
		Lineage: []store.LineageEntry{{
			Source:    string(item.Source),
			SourceID:  item.SourceID,
			FirstSeen: now,
			LastSeen:  now,
		}},
	}
	if resolve && o.resolver != nil && !item.Speculative {
		if final := o.resolver.Resolve(ctx, item.URL); final != item.URL {
			doc.FinalURL = &final
		}
	}
	if _, err := o.catalog.CreateDocument(ctx, doc); err != nil {
		// A concurrent run may have inserted the same URL first.
		o.logger.Debug("Create collided, counting as update", zap.String("url", item.URL), zap.Error(err))
		result.ExistingUpdated++
		metrics.ObserveCatalogOutcome("updated")
		return
	}
	result.NewDocuments++
	metrics.ObserveCatalogOutcome("new")
}
