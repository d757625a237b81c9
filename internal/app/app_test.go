// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/app"
	"github.com/JakeFAU/docket-crawler/internal/config"
	"github.com/JakeFAU/docket-crawler/internal/extract"
	pubmemory "github.com/JakeFAU/docket-crawler/internal/publisher/memory"
	"github.com/JakeFAU/docket-crawler/internal/storage/memory"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

const hubPage = `<html><body><main><ul>
<li><a href="/epstein/files/EFTA00000001.pdf">EFTA00000001</a></li>
</ul></main></body></html>`

func statementPage() string {
	return `<html><head><title>Statement</title></head><body><main><p>` +
		strings.Repeat("The department released additional records today. ", 6) +
		`</p></main></body></html>`
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/epstein/data-set-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(hubPage))
	})
	mux.HandleFunc("/epstein/statement", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(statementPage()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.HTTP.RespectRobots = false
	cfg.Discovery.DelayMs = 0
	cfg.Extract.BatchDelayMs = 0
	cfg.PubSub.Driver = "memory"
	return cfg
}

func build(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append(opts, app.WithRegisterer(prometheus.NewRegistry()))
	a, err := app.Build(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestBuildWithDefaults(t *testing.T) {
	cfg := testConfig(t)
	a := build(t, cfg)

	assert.NotNil(t, a.Catalog())
	assert.NotNil(t, a.Orchestrator())
	assert.NotNil(t, a.Pipeline())
	assert.NotNil(t, a.Batch())
	assert.IsType(t, &pubmemory.Publisher{}, a.Publisher())
	assert.Equal(t, cfg.Discovery.MaxHubs, a.DiscoveryOptions().MaxHubs)
	assert.Equal(t, cfg.Extract.BatchLimit, a.BatchOptions().Limit)
	require.NoError(t, a.Migrate(context.Background()))

	rec := httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildWithoutPublisher(t *testing.T) {
	cfg := testConfig(t)
	cfg.PubSub.Driver = "none"
	a := build(t, cfg)
	assert.Nil(t, a.Publisher())
}

func TestBuildRejectsBadPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "postgres"
	cfg.DB.DSN = "host=localhost port=notaport"

	_, err := app.Build(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog init failed")
}

func TestDiscoveryThenProcess(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t)
	cfg.Discovery.Hub.Seeds = []string{site.URL + "/epstein/data-set-1"}

	catalog := memory.NewCatalogStore()
	a := build(t, cfg, app.WithCatalog(catalog))
	ctx := context.Background()

	result, err := a.Orchestrator().RunDiscovery(ctx, a.DiscoveryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewDocuments)

	pdfURL := site.URL + "/epstein/files/EFTA00000001.pdf"
	doc, err := catalog.GetDocumentBySourceURL(ctx, pdfURL)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Equal(t, store.FileTypePDF, doc.FileType)

	target := site.URL + "/epstein/statement"
	require.NoError(t, a.Pipeline().ProcessDocument(ctx, target, "Statement"))
	indexed, err := catalog.GetDocumentBySourceURL(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, indexed.Status)

	pub, ok := a.Publisher().(*pubmemory.Publisher)
	require.True(t, ok)
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, extract.DefaultTopic, msgs[0].Topic)
}
