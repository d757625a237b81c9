package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/worker"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/epstein/data-set-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><body><main>
<a href="/epstein/files/EFTA00000001.pdf">EFTA00000001</a>
<a href="/epstein/files/EFTA00000002.pdf">EFTA00000002</a>
</main></body></html>`)
	})
	mux.HandleFunc("/epstein/statement", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body><main><p>"+
			strings.Repeat("The department released additional records today. ", 6)+
			"</p></main></body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, seed string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`logging:
  development: false
  level: error
http:
  respect_robots: false
discovery:
  delay_ms: 0
  hub:
    seeds: ["%s"]
extract:
  batch_delay_ms: 0
joblog:
  persist_to_store: false
`, seed)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDiscoverCommandPrintsRunSummary(t *testing.T) {
	site := newSite(t)
	cfgPath := writeConfig(t, site.URL+"/epstein/data-set-1")

	out, err := execute(t, "discover", "--config", cfgPath, "--sources", "hub", "--max-hubs", "5")
	require.NoError(t, err)

	var result discovery.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.TotalDiscovered)
	assert.Equal(t, 2, result.NewDocuments)
	assert.Zero(t, result.Errors)
}

func TestDiscoverCommandRejectsUnknownSource(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	_, err := execute(t, "discover", "--config", cfgPath, "--sources", "rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown discovery source")
}

func TestDiscoverCommandRejectsNegativeDelay(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	_, err := execute(t, "discover", "--config", cfgPath, "--delay", "-1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--delay")
}

func TestProcessCommandIndexesDocument(t *testing.T) {
	site := newSite(t)
	cfgPath := writeConfig(t, site.URL+"/epstein/data-set-1")

	out, err := execute(t, "process", "--config", cfgPath, "--title", "Statement", site.URL+"/epstein/statement")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "indexed", payload["status"])
	assert.NotEmpty(t, payload["document_id"])
}

func TestProcessCommandRequiresURL(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	_, err := execute(t, "process", "--config", cfgPath)
	require.Error(t, err)
}

func TestProcessPendingOnEmptyCatalog(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	out, err := execute(t, "process-pending", "--config", cfgPath, "--limit", "10")
	require.NoError(t, err)

	var summary worker.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, worker.Summary{}, summary)
}

func TestProcessPendingRejectsZeroLimit(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	_, err := execute(t, "process-pending", "--config", cfgPath, "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")
}

func TestMigrateCommandOnMemoryCatalog(t *testing.T) {
	cfgPath := writeConfig(t, "https://example.gov/epstein")

	out, err := execute(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "catalog schema is up to date")
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "migrate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
