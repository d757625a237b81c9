package hub

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

const listingURL = "https://www.justice.gov/epstein/doj-disclosures/data-set-1"

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (discovery.Page, error) {
	f.calls = append(f.calls, u)
	if err, ok := f.errs[u]; ok {
		return discovery.Page{}, err
	}
	body, ok := f.pages[u]
	if !ok {
		return discovery.Page{}, &discovery.StatusError{URL: u, StatusCode: 404}
	}
	return discovery.Page{URL: u, FinalURL: u, StatusCode: 200, Body: []byte(body)}, nil
}

func testRules() *discovery.Rules {
	return discovery.MustRules(discovery.RulesConfig{
		AllowedHosts:      []string{"www.justice.gov"},
		AllowPathPatterns: []string{`^/epstein`},
	})
}

func eftaListing(first, last int) string {
	var b strings.Builder
	b.WriteString("<html><body><main><ul>")
	for n := first; n <= last; n++ {
		fmt.Fprintf(&b, `<li><a href="/epstein/files/DataSet1/EFTA%08d.pdf">EFTA%08d</a></li>`, n, n)
	}
	b.WriteString(`</ul><nav class="pager">`)
	b.WriteString(`<a href="?page=1">2</a><a href="?page=2">3</a><a href="?page=3">4</a>`)
	b.WriteString(`<a href="?page=1">Next ›</a><a href="?page=3">Last »</a>`)
	b.WriteString("</nav></main></body></html>")
	return b.String()
}

func split(urls []discovery.DiscoveredURL) (real, speculative []discovery.DiscoveredURL) {
	for _, u := range urls {
		if u.Speculative {
			speculative = append(speculative, u)
		} else {
			real = append(real, u)
		}
	}
	return real, speculative
}

func TestDiscoverInfersBlockedPagination(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]string{listingURL: eftaListing(1, 50)},
		errs: map[string]error{
			listingURL + "?page=1": &discovery.StatusError{URL: listingURL + "?page=1", StatusCode: 429},
		},
	}
	c := New(Config{Seeds: []string{listingURL}, ProbePages: 3}, fetcher, testRules(), nil)

	out, err := c.Discover(context.Background(), discovery.Request{Pacer: ratelimit.NoDelay()})
	require.NoError(t, err)

	real, speculative := split(out.URLs)
	require.Len(t, real, 50)
	require.Len(t, speculative, 150)
	require.Equal(t, "https://www.justice.gov/epstein/files/DataSet1/EFTA00000051.pdf", speculative[0].URL)
	require.Equal(t, "https://www.justice.gov/epstein/files/DataSet1/EFTA00000200.pdf", speculative[149].URL)
	for _, u := range speculative {
		require.Equal(t, discovery.SourceHubScrape, u.Source)
		require.Equal(t, listingURL, u.SourceID)
		require.Equal(t, store.FileTypePDF, u.FileType)
	}
	require.Equal(t, []string{listingURL, listingURL + "?page=1"}, fetcher.calls)
	require.Zero(t, out.Errors)
}

func TestDiscoverProbesUntilFirstFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]string{
			listingURL:             eftaListing(1, 50),
			listingURL + "?page=1": eftaListing(51, 100),
		},
		errs: map[string]error{
			listingURL + "?page=2": &discovery.StatusError{URL: listingURL + "?page=2", StatusCode: 403},
		},
	}
	c := New(Config{Seeds: []string{listingURL}, ProbePages: 3}, fetcher, testRules(), nil)

	out, err := c.Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)

	real, speculative := split(out.URLs)
	require.Len(t, real, 100)
	require.Len(t, speculative, 100)
	require.Equal(t, "https://www.justice.gov/epstein/files/DataSet1/EFTA00000101.pdf", speculative[0].URL)
	require.Len(t, fetcher.calls, 3)
}

func TestDiscoverRespectsInferenceCap(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{listingURL: eftaListing(1, 50)}}
	c := New(Config{Seeds: []string{listingURL}, ProbePages: 0, MaxInferred: 10}, fetcher, testRules(), nil)

	out, err := c.Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)
	_, speculative := split(out.URLs)
	require.Len(t, speculative, 10)
	require.Len(t, fetcher.calls, 1)
}

func TestDiscoverBreadthFirstWithFailures(t *testing.T) {
	t.Parallel()

	seed := "https://www.justice.gov/epstein"
	fetcher := &fakeFetcher{
		pages: map[string]string{
			seed: `<html><body>
				<a href="/epstein/court-records">Court records</a>
				<a href="/epstein/doj-disclosures">DOJ Disclosures</a>
				<a href="/epstein/files/flight-log.pdf">Flight log</a>
				<a href="/epstein/statement?utm_source=x">Statement</a>
				<a href="/epstein/statement">Statement again</a>
				<a href="https://www.fbi.gov/epstein/a.pdf">Elsewhere</a>
				<a href="/careers">Careers</a>
				<a href="#top">Top</a>
			</body></html>`,
			"https://www.justice.gov/epstein/court-records": `<html><body>
				<a href="/epstein/court-records/order.pdf">Order</a>
				<a href="/epstein">Back</a>
			</body></html>`,
		},
		errs: map[string]error{
			"https://www.justice.gov/epstein/doj-disclosures": fmt.Errorf("connection reset"),
		},
	}
	c := New(Config{Seeds: []string{seed}}, fetcher, testRules(), nil)

	out, err := c.Discover(context.Background(), discovery.Request{MaxHubs: 10})
	require.NoError(t, err)
	require.Equal(t, 1, out.Errors)

	got := make([]string, 0, len(out.URLs))
	for _, u := range out.URLs {
		got = append(got, u.URL)
	}
	require.Equal(t, []string{
		"https://www.justice.gov/epstein/files/flight-log.pdf",
		"https://www.justice.gov/epstein/statement?utm_source=x",
		"https://www.justice.gov/epstein/court-records/order.pdf",
		"https://www.justice.gov/epstein",
	}, got)
	require.Equal(t, "https://www.justice.gov/epstein/court-records", out.URLs[2].SourceID)
	require.Equal(t, []string{
		seed,
		"https://www.justice.gov/epstein/court-records",
		"https://www.justice.gov/epstein/doj-disclosures",
	}, fetcher.calls)
}

func TestDiscoverStopsAtHubBudget(t *testing.T) {
	t.Parallel()

	pages := make(map[string]string)
	for i := range 5 {
		pages[fmt.Sprintf("https://www.justice.gov/epstein/documents/%d", i)] = fmt.Sprintf(
			`<a href="/epstein/documents/%d">Index</a>`, i+1)
	}
	fetcher := &fakeFetcher{pages: pages}
	c := New(Config{Seeds: []string{"https://www.justice.gov/epstein/documents/0"}}, fetcher, testRules(), nil)

	_, err := c.Discover(context.Background(), discovery.Request{MaxHubs: 2})
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 2)
}

func TestDiscoverChargesPaginationToHubBudget(t *testing.T) {
	t.Parallel()

	pages := map[string]string{listingURL: eftaListing(1, 50)}
	for k := 1; k <= 3; k++ {
		pages[fmt.Sprintf("%s?page=%d", listingURL, k)] = eftaListing(50*k+1, 50*(k+1))
	}

	fetcher := &fakeFetcher{pages: pages}
	c := New(Config{Seeds: []string{listingURL}, ProbePages: 3}, fetcher, testRules(), nil)
	out, err := c.Discover(context.Background(), discovery.Request{MaxHubs: 1})
	require.NoError(t, err)
	require.Equal(t, []string{listingURL}, fetcher.calls)
	real, speculative := split(out.URLs)
	require.Len(t, real, 50)
	require.Len(t, speculative, 150)

	fetcher = &fakeFetcher{pages: pages}
	c = New(Config{Seeds: []string{listingURL}, ProbePages: 3}, fetcher, testRules(), nil)
	out, err = c.Discover(context.Background(), discovery.Request{MaxHubs: 2})
	require.NoError(t, err)
	require.Equal(t, []string{listingURL, listingURL + "?page=1"}, fetcher.calls)
	real, speculative = split(out.URLs)
	require.Len(t, real, 100)
	require.Len(t, speculative, 100)
}

func rateLimitHits(t *testing.T, component string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "rate_limit_hits_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "component" && label.GetValue() == component {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// Not parallel: reads process-wide counters.
func TestPaginationFailuresCountRateLimitOnce(t *testing.T) {
	hubBefore := rateLimitHits(t, "hub")
	paginationBefore := rateLimitHits(t, "hub-pagination")

	blocked := &fakeFetcher{
		pages: map[string]string{listingURL: eftaListing(1, 50)},
		errs: map[string]error{
			listingURL + "?page=1": &discovery.StatusError{URL: listingURL + "?page=1", StatusCode: 429},
		},
	}
	_, err := New(Config{Seeds: []string{listingURL}, ProbePages: 3}, blocked, testRules(), nil).
		Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)

	missing := &fakeFetcher{pages: map[string]string{listingURL: eftaListing(1, 50)}}
	_, err = New(Config{Seeds: []string{listingURL}, ProbePages: 3}, missing, testRules(), nil).
		Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)
	require.Len(t, missing.calls, 2)

	require.InDelta(t, paginationBefore+1, rateLimitHits(t, "hub-pagination"), 1e-9)
	require.InDelta(t, hubBefore, rateLimitHits(t, "hub"), 1e-9)
}
