package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/clock/system"
	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/storage/memory"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

type stubDiscoverer struct {
	source  discovery.Source
	urls    []discovery.DiscoveredURL
	errs    int
	err     error
	explode bool
	calls   int
}

func (s *stubDiscoverer) Source() discovery.Source { return s.source }

func (s *stubDiscoverer) Discover(context.Context, discovery.Request) (discovery.Output, error) {
	s.calls++
	if s.explode {
		panic("parser exploded")
	}
	if s.err != nil {
		return discovery.Output{}, s.err
	}
	return discovery.Output{URLs: s.urls, Errors: s.errs}, nil
}

func found(source discovery.Source, sourceID string, urls ...string) []discovery.DiscoveredURL {
	out := make([]discovery.DiscoveredURL, 0, len(urls))
	for _, u := range urls {
		out = append(out, discovery.DiscoveredURL{URL: u, Source: source, SourceID: sourceID})
	}
	return out
}

type recordingEmitter struct {
	entries []joblog.Entry
}

func (r *recordingEmitter) Emit(e joblog.Entry) { r.entries = append(r.entries, e) }

func newOrchestrator(catalog discovery.Catalog, ds ...discovery.Discoverer) *discovery.Orchestrator {
	return discovery.NewOrchestrator(catalog, ds, nil,
		discovery.WithClock(system.NewStepping(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Second)),
		discovery.WithPacerFactory(func(time.Duration) discovery.Pacer { return noPacer{} }),
	)
}

type noPacer struct{}

func (noPacer) Wait(context.Context, string) error { return nil }

func seed(t *testing.T, catalog *memory.CatalogStore, rawURL, canonical string) store.Document {
	t.Helper()
	doc, err := catalog.CreateDocument(context.Background(), store.Document{
		SourceURL:    rawURL,
		CanonicalURL: &canonical,
		Status:       store.StatusIndexed,
		Lineage:      []store.LineageEntry{},
	})
	require.NoError(t, err)
	return doc
}

func TestRunCountsNewAndExisting(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	seed(t, catalog, "https://www.justice.gov/epstein/files/DataSet%201/EFTA00000001.pdf",
		"https://www.justice.gov/epstein/files/DataSet%201/EFTA00000001.pdf")
	seed(t, catalog, "https://www.justice.gov/epstein/files/DataSet%201/EFTA00000002.pdf",
		"https://www.justice.gov/epstein/files/DataSet%201/EFTA00000002.pdf")

	var urls []string
	for i := 1; i <= 10; i++ {
		urls = append(urls, fmt.Sprintf("https://www.justice.gov/epstein/files/DataSet%%201/EFTA%08d.pdf", i))
	}
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls:   found(discovery.SourceHubScrape, "https://www.justice.gov/epstein/doj-disclosures", urls...),
	}
	jobs := &recordingEmitter{}
	orch := discovery.NewOrchestrator(catalog, []discovery.Discoverer{hub}, nil,
		discovery.WithJobLog(jobs),
		discovery.WithPacerFactory(func(time.Duration) discovery.Pacer { return noPacer{} }),
	)

	res, err := orch.RunDiscovery(context.Background(), discovery.Options{Sources: []discovery.Source{discovery.SourceHubScrape}})
	require.NoError(t, err)
	assert.Equal(t, 10, res.TotalDiscovered)
	assert.Equal(t, 8, res.NewDocuments)
	assert.Equal(t, 2, res.ExistingUpdated)
	assert.Zero(t, res.Errors)
	assert.Equal(t, discovery.SourceStats{Found: 10}, res.BySource[discovery.SourceHubScrape])

	run, err := catalog.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, "hub-scrape", run.Source)
	assert.Equal(t, store.RunCounters{URLsFound: 10, URLsNew: 8, URLsChanged: 2}, run.Counters)

	doc, err := catalog.GetDocumentBySourceURL(context.Background(), urls[5])
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Equal(t, store.FileTypePDF, doc.FileType)
	assert.Equal(t, "DOJ Disclosure", doc.DocumentType)
	require.Len(t, doc.Lineage, 1)
	assert.Equal(t, "hub-scrape", doc.Lineage[0].Source)

	require.Len(t, jobs.entries, 2)
	assert.Equal(t, joblog.StatusSuccess, jobs.entries[1].Status)
}

func TestRunTwiceCreatesNothingNew(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls:   found(discovery.SourceHubScrape, "hub-1", "https://example.gov/a.pdf", "https://example.gov/b.pdf"),
	}
	orch := newOrchestrator(catalog, hub)

	first, err := orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	require.Equal(t, 2, first.NewDocuments)

	before, err := catalog.GetDocumentBySourceURL(context.Background(), "https://example.gov/a.pdf")
	require.NoError(t, err)

	second, err := orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Zero(t, second.NewDocuments)
	assert.Equal(t, 2, second.ExistingUpdated)
	assert.Len(t, catalog.Documents(), 2)

	after, err := catalog.GetDocumentBySourceURL(context.Background(), "https://example.gov/a.pdf")
	require.NoError(t, err)
	require.Len(t, after.Lineage, 1)
	assert.Equal(t, before.Lineage[0].FirstSeen, after.Lineage[0].FirstSeen)
	assert.True(t, after.Lineage[0].LastSeen.After(before.Lineage[0].LastSeen))
}

func TestLineageAcrossSources(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls:   found(discovery.SourceHubScrape, "hub-1", "https://example.gov/report.pdf"),
	}
	sitemap := &stubDiscoverer{
		source: discovery.SourceSitemap,
		urls:   found(discovery.SourceSitemap, "https://example.gov/sitemap.xml", "https://example.gov/report.pdf"),
	}
	orch := newOrchestrator(catalog, hub, sitemap)

	_, err := orch.RunDiscovery(context.Background(), discovery.Options{Sources: []discovery.Source{discovery.SourceHubScrape}})
	require.NoError(t, err)
	_, err = orch.RunDiscovery(context.Background(), discovery.Options{Sources: []discovery.Source{discovery.SourceSitemap}})
	require.NoError(t, err)

	docs := catalog.Documents()
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Lineage, 2)
	assert.Equal(t, "hub-scrape", docs[0].Lineage[0].Source)
	assert.Equal(t, "sitemap", docs[0].Lineage[1].Source)
}

func TestFailingDiscoverersDoNotStopRun(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	hub := &stubDiscoverer{source: discovery.SourceHubScrape, explode: true}
	sitemap := &stubDiscoverer{
		source: discovery.SourceSitemap,
		urls:   found(discovery.SourceSitemap, "sm", "https://example.gov/one.pdf"),
		errs:   1,
	}
	archive := &stubDiscoverer{source: discovery.SourceArchive, err: errors.New("cdx unavailable")}
	orch := newOrchestrator(catalog, archive, sitemap, hub)

	res, err := orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Errors)
	assert.Equal(t, 1, res.NewDocuments)
	assert.Equal(t, discovery.SourceStats{Errors: 1}, res.BySource[discovery.SourceHubScrape])
	assert.Equal(t, discovery.SourceStats{Found: 1, Errors: 1}, res.BySource[discovery.SourceSitemap])
	assert.Equal(t, discovery.SourceStats{Errors: 1}, res.BySource[discovery.SourceArchive])
	assert.Equal(t, 1, hub.calls)
	assert.Equal(t, 1, archive.calls)

	_, err = catalog.GetDocumentBySourceURL(context.Background(), "https://example.gov/one.pdf")
	require.NoError(t, err)
}

func TestDedupFirstSourceWins(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls: []discovery.DiscoveredURL{{
			URL: "https://example.gov/doc.pdf", Title: "From hub",
			Source: discovery.SourceHubScrape, SourceID: "hub-1",
		}},
	}
	archive := &stubDiscoverer{
		source: discovery.SourceArchive,
		urls: []discovery.DiscoveredURL{{
			URL: "http://EXAMPLE.gov/doc.pdf?utm_source=feed", Title: "From archive",
			Source: discovery.SourceArchive, SourceID: "wayback:example.gov/*",
		}},
	}
	orch := newOrchestrator(catalog, archive, hub)

	res, err := orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalDiscovered)
	assert.Equal(t, discovery.SourceStats{Found: 1}, res.BySource[discovery.SourceArchive])

	docs := catalog.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "From hub", docs[0].Title)
	assert.Equal(t, "https://example.gov/doc.pdf", docs[0].SourceURL)
	require.Len(t, docs[0].Lineage, 1)
	assert.Equal(t, "hub-scrape", docs[0].Lineage[0].Source)
}

func TestAliasCreatedForDistinctRawURL(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	existing := seed(t, catalog, "https://example.gov/doc.pdf", "https://example.gov/doc.pdf")
	sitemap := &stubDiscoverer{
		source: discovery.SourceSitemap,
		urls:   found(discovery.SourceSitemap, "sm", "http://EXAMPLE.gov/doc.pdf?utm_campaign=x"),
	}
	orch := newOrchestrator(catalog, sitemap)

	res, err := orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExistingUpdated)
	assert.Equal(t, 1, res.AliasesCreated)

	aliases := catalog.Aliases()
	require.Len(t, aliases, 1)
	assert.Equal(t, existing.ID, aliases[0].DocumentID)
	assert.Equal(t, "sitemap", aliases[0].DiscoverySource)

	res, err = orch.RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Zero(t, res.AliasesCreated)
	assert.Len(t, catalog.Aliases(), 1)
}

func TestCanonicalBackfillOnSourceMatch(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	_, err := catalog.UpsertStatus(context.Background(), "https://example.gov/Doc.pdf/", "", "", store.StatusError)
	require.NoError(t, err)
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls:   found(discovery.SourceHubScrape, "hub-1", "https://example.gov/Doc.pdf/"),
	}

	res, err := newOrchestrator(catalog, hub).RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExistingUpdated)
	assert.Zero(t, res.AliasesCreated)

	doc, err := catalog.GetDocumentByCanonicalURL(context.Background(), "https://example.gov/Doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://example.gov/Doc.pdf/", doc.SourceURL)
	require.Len(t, doc.Lineage, 1)
}

type conflictingCatalog struct {
	*memory.CatalogStore
}

func (conflictingCatalog) CreateDocument(context.Context, store.Document) (store.Document, error) {
	return store.Document{}, store.ErrConflict
}

func TestCreateFailureCountsAsUpdated(t *testing.T) {
	t.Parallel()

	catalog := conflictingCatalog{memory.NewCatalogStore()}
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls:   found(discovery.SourceHubScrape, "hub-1", "https://example.gov/a.pdf", "https://example.gov/b.pdf"),
	}

	res, err := newOrchestrator(catalog, hub).RunDiscovery(context.Background(), discovery.Options{})
	require.NoError(t, err)
	assert.Zero(t, res.NewDocuments)
	assert.Equal(t, 2, res.ExistingUpdated)
	assert.Zero(t, res.Errors)
}

type runFailingCatalog struct {
	*memory.CatalogStore
}

func (runFailingCatalog) CreateRun(context.Context, store.DiscoveryRun) (store.DiscoveryRun, error) {
	return store.DiscoveryRun{}, errors.New("connection refused")
}

func TestRunRecordFailurePropagates(t *testing.T) {
	t.Parallel()

	hub := &stubDiscoverer{source: discovery.SourceHubScrape}
	_, err := newOrchestrator(runFailingCatalog{memory.NewCatalogStore()}, hub).RunDiscovery(context.Background(), discovery.Options{})
	require.Error(t, err)
	assert.Zero(t, hub.calls)
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, rawURL string) string {
	if final, ok := m[rawURL]; ok {
		return final
	}
	return rawURL
}

func TestResolveRedirectsSkipsSpeculative(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	hub := &stubDiscoverer{
		source: discovery.SourceHubScrape,
		urls: []discovery.DiscoveredURL{
			{URL: "https://example.gov/short/1", Source: discovery.SourceHubScrape, SourceID: "hub"},
			{URL: "https://example.gov/short/2", Source: discovery.SourceHubScrape, SourceID: "hub", Speculative: true},
		},
	}
	resolver := mapResolver{
		"https://example.gov/short/1": "https://example.gov/files/1.pdf",
		"https://example.gov/short/2": "https://example.gov/files/2.pdf",
	}
	orch := discovery.NewOrchestrator(catalog, []discovery.Discoverer{hub}, nil,
		discovery.WithResolver(resolver),
		discovery.WithPacerFactory(func(time.Duration) discovery.Pacer { return noPacer{} }),
	)

	_, err := orch.RunDiscovery(context.Background(), discovery.Options{ResolveRedirects: true})
	require.NoError(t, err)

	resolved, err := catalog.GetDocumentBySourceURL(context.Background(), "https://example.gov/short/1")
	require.NoError(t, err)
	require.NotNil(t, resolved.FinalURL)
	assert.Equal(t, "https://example.gov/files/1.pdf", *resolved.FinalURL)

	speculative, err := catalog.GetDocumentBySourceURL(context.Background(), "https://example.gov/short/2")
	require.NoError(t, err)
	assert.Nil(t, speculative.FinalURL)
}

func TestDedupKeepsOrder(t *testing.T) {
	t.Parallel()

	items := []discovery.DiscoveredURL{
		{URL: "https://example.gov/b"},
		{URL: "https://example.gov/a/"},
		{URL: "HTTPS://example.gov/b?utm_source=x"},
		{URL: "https://example.gov/a"},
	}
	out := discovery.Dedup(items)
	require.Len(t, out, 2)
	assert.Equal(t, "https://example.gov/b", out[0].URL)
	assert.Equal(t, "https://example.gov/a/", out[1].URL)
}
