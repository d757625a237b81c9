package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

type fakeFetcher struct {
	bodies map[string][]byte
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (discovery.Page, error) {
	f.calls = append(f.calls, u)
	body, ok := f.bodies[u]
	if !ok {
		return discovery.Page{}, errors.New("connection refused")
	}
	return discovery.Page{URL: u, StatusCode: 200, Body: body}, nil
}

const indexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.justice.gov/sitemap.xml?page=1</loc></sitemap>
  <sitemap><loc>https://www.justice.gov/sitemap.xml?page=2</loc></sitemap>
  <sitemap><loc>https://www.justice.gov/sitemap-archive.xml.gz</loc></sitemap>
  <sitemap><loc>https://www.justice.gov/sitemap.xml?page=1</loc></sitemap>
</sitemapindex>`

const pageOneXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.justice.gov/epstein/files/EFTA00000001.pdf</loc><lastmod>2025-02-27</lastmod></url>
  <url><loc>https://www.justice.gov/epstein/doj-disclosures</loc><lastmod>2025-02-27T10:00:00Z</lastmod></url>
  <url><loc>https://www.justice.gov/careers</loc></url>
  <url><loc>http://www.justice.gov/epstein/files/EFTA00000001.pdf</loc></url>
</urlset>`

func gzipped(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDiscoverWalksIndex(t *testing.T) {
	t.Parallel()

	archiveXML := `<urlset><url><loc>https://www.justice.gov/epstein/court-records/order.pdf</loc></url></urlset>`
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://www.justice.gov/sitemap.xml":            []byte(indexXML),
		"https://www.justice.gov/sitemap.xml?page=1":     []byte(pageOneXML),
		"https://www.justice.gov/sitemap-archive.xml.gz": gzipped(t, archiveXML),
	}}
	rules := discovery.MustRules(discovery.RulesConfig{AllowPathPatterns: []string{`^/epstein`}})
	d := New(Config{Seeds: []string{"https://www.justice.gov/sitemap.xml"}}, fetcher, rules, nil)

	out, err := d.Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Errors)
	require.Len(t, out.URLs, 3)

	require.Equal(t, "https://www.justice.gov/epstein/files/EFTA00000001.pdf", out.URLs[0].URL)
	require.Equal(t, store.FileTypePDF, out.URLs[0].FileType)
	require.NotNil(t, out.URLs[0].LastMod)
	require.Equal(t, "https://www.justice.gov/sitemap.xml?page=1", out.URLs[0].SourceID)
	require.Equal(t, store.FileTypeHTML, out.URLs[1].FileType)
	require.Equal(t, "https://www.justice.gov/epstein/court-records/order.pdf", out.URLs[2].URL)
	require.Equal(t, discovery.SourceSitemap, out.URLs[2].Source)

	require.Len(t, fetcher.calls, 4)
}

func TestDiscoverBoundsSitemapCount(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://www.justice.gov/sitemap.xml": []byte(indexXML),
	}}
	d := New(Config{Seeds: []string{"https://www.justice.gov/sitemap.xml"}, MaxSitemaps: 2}, fetcher,
		discovery.MustRules(discovery.RulesConfig{}), nil)

	out, err := d.Discover(context.Background(), discovery.Request{})
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 2)
	require.Equal(t, 1, out.Errors)
}

func TestParseRejectsUnknownRoot(t *testing.T) {
	t.Parallel()

	_, err := parse([]byte(`<rss><channel/></rss>`))
	require.Error(t, err)
	_, err = parse([]byte(`not xml`))
	require.Error(t, err)
}
