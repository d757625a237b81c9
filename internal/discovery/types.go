package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// Source names a discovery strategy.
type Source string

// Known sources in priority order.
const (
	SourceHubScrape Source = "hub-scrape"
	SourceSitemap   Source = "sitemap"
	SourceArchive   Source = "wayback"
)

// PriorityOrder is the fixed order in which discoverers run. Earlier sources
// win dedup ties.
var PriorityOrder = []Source{SourceHubScrape, SourceSitemap, SourceArchive}

// ParseSource maps a user-supplied name onto a Source.
func ParseSource(name string) (Source, error) {
	switch name {
	case string(SourceHubScrape), "hub", "hubs":
		return SourceHubScrape, nil
	case string(SourceSitemap), "sitemaps":
		return SourceSitemap, nil
	case string(SourceArchive), "archive":
		return SourceArchive, nil
	default:
		return "", fmt.Errorf("unknown discovery source %q", name)
	}
}

// Page is a fetched listing page, sitemap or index response.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// PageFetcher retrieves one URL. Non-2xx responses are returned as *StatusError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Pacer spaces requests to the same origin.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsRateLimited reports whether err carries a 403 or 429 status.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode == http.StatusForbidden
}

// DiscoveredURL is one raw URL reported by a discoverer.
type DiscoveredURL struct {
	URL      string
	Title    string
	FileType store.FileType
	Source   Source
	// SourceID identifies the hub page, sitemap or archive query that produced the URL.
	SourceID string
	// Speculative URLs were generated without being seen on a page.
	Speculative bool
	LastMod     *time.Time
}

// Request carries the per-run options handed to a discoverer.
type Request struct {
	MaxHubs int
	Pacer   Pacer
}

// Output is what a discoverer returns: URLs plus a count of tolerated failures.
type Output struct {
	URLs   []DiscoveredURL
	Errors int
}

// Discoverer produces candidate document URLs from one source.
type Discoverer interface {
	Source() Source
	Discover(ctx context.Context, req Request) (Output, error)
}
