// Package archive discovers documents no longer linked live by querying the
// Wayback Machine CDX index.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
)

// DefaultEndpoint is the public CDX search API.
const DefaultEndpoint = "https://web.archive.org/cdx/search/cdx"

// ErrNoRows marks a query that returned no snapshots. Callers count it as a
// failed query.
var ErrNoRows = errors.New("cdx query returned no rows")

// Config selects the URL patterns and filters.
type Config struct {
	Endpoint  string
	Patterns  []string
	MimeTypes []string
	Limit     int
}

// Discoverer implements discovery.Discoverer for the web archive.
type Discoverer struct {
	cfg     Config
	fetcher discovery.PageFetcher
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(cfg Config, fetcher discovery.PageFetcher, logger *zap.Logger) *Discoverer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if len(cfg.MimeTypes) == 0 {
		cfg.MimeTypes = []string{"application/pdf", "text/html"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Source implements discovery.Discoverer.
func (d *Discoverer) Source() discovery.Source {
	return discovery.SourceArchive
}

// SourceID is the lineage origin recorded for URLs found by pattern.
func SourceID(pattern string) string {
	return "wayback:" + pattern
}

// Discover runs one CDX query per pattern, sequentially, and returns the
// original (non-archive) URLs.
func (d *Discoverer) Discover(ctx context.Context, req discovery.Request) (discovery.Output, error) {
	pacer := req.Pacer
	if pacer == nil {
		pacer = ratelimit.NoDelay()
	}

	var out discovery.Output
	seen := make(map[string]struct{})
	for _, pattern := range d.cfg.Patterns {
		if err := pacer.Wait(ctx, d.cfg.Endpoint); err != nil {
			return out, fmt.Errorf("archive queries interrupted: %w", err)
		}
		records, err := d.query(ctx, pattern)
		if err != nil {
			out.Errors++
			if errors.Is(err, ErrNoRows) {
				d.logger.Warn("Archive query returned no rows", zap.String("pattern", pattern))
			} else {
				d.logger.Warn("Archive query failed", zap.String("pattern", pattern), zap.Error(err))
			}
			continue
		}
		for _, rec := range records {
			u, perr := url.Parse(rec.Original)
			if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				continue
			}
			key := urlnorm.Normalize(rec.Original)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.URLs = append(out.URLs, discovery.DiscoveredURL{
				URL:      rec.Original,
				FileType: fileType(rec),
				Source:   discovery.SourceArchive,
				SourceID: SourceID(pattern),
			})
		}
	}

	d.logger.Info("Archive queries complete",
		zap.Int("patterns", len(d.cfg.Patterns)),
		zap.Int("urls", len(out.URLs)),
		zap.Int("errors", out.Errors),
	)
	return out, nil
}

func (d *Discoverer) query(ctx context.Context, pattern string) ([]Record, error) {
	queryURL, err := buildQuery(d.cfg.Endpoint, pattern, d.cfg.MimeTypes, d.cfg.Limit)
	if err != nil {
		return nil, err
	}
	page, err := d.fetcher.Fetch(ctx, queryURL)
	if err != nil {
		return nil, err
	}
	records, err := parseRecords(page.Body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRows
	}
	return records, nil
}

func fileType(rec Record) store.FileType {
	switch {
	case strings.Contains(rec.MimeType, "pdf"):
		return store.FileTypePDF
	case strings.Contains(rec.MimeType, "html"):
		return store.FileTypeHTML
	default:
		return discovery.FileTypeFromURL(rec.Original)
	}
}
