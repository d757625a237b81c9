// Package sitemap discovers documents by walking sitemap indexes.
package sitemap

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
)

// Config lists seed sitemaps and bounds the walk.
type Config struct {
	Seeds       []string
	MaxSitemaps int
}

// Discoverer implements discovery.Discoverer for sitemaps.
type Discoverer struct {
	cfg     Config
	fetcher discovery.PageFetcher
	rules   *discovery.Rules
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(cfg Config, fetcher discovery.PageFetcher, rules *discovery.Rules, logger *zap.Logger) *Discoverer {
	if cfg.MaxSitemaps <= 0 {
		cfg.MaxSitemaps = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, fetcher: fetcher, rules: rules, logger: logger}
}

// Source implements discovery.Discoverer.
func (d *Discoverer) Source() discovery.Source {
	return discovery.SourceSitemap
}

// Discover fetches each sitemap once, following index entries breadth-first,
// and returns relevant <loc> entries. A failed sitemap is counted and its
// children are not explored.
func (d *Discoverer) Discover(ctx context.Context, req discovery.Request) (discovery.Output, error) {
	pacer := req.Pacer
	if pacer == nil {
		pacer = ratelimit.NoDelay()
	}

	queue := make([]string, 0, len(d.cfg.Seeds))
	queued := make(map[string]struct{})
	push := func(raw string) {
		key := urlnorm.Normalize(raw)
		if _, ok := queued[key]; ok {
			return
		}
		queued[key] = struct{}{}
		queue = append(queue, raw)
	}
	for _, seed := range d.cfg.Seeds {
		push(seed)
	}

	var out discovery.Output
	seen := make(map[string]struct{})
	fetched := 0
	for len(queue) > 0 && fetched < d.cfg.MaxSitemaps {
		sitemapURL := queue[0]
		queue = queue[1:]
		if err := pacer.Wait(ctx, sitemapURL); err != nil {
			return out, fmt.Errorf("sitemap walk interrupted: %w", err)
		}
		fetched++

		doc, err := d.load(ctx, sitemapURL)
		if err != nil {
			out.Errors++
			d.logger.Warn("Sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
			continue
		}
		for _, child := range doc.Children {
			push(child)
		}
		for _, entry := range doc.Entries {
			u, perr := url.Parse(entry.Loc)
			if perr != nil || !d.rules.Allowed(u) {
				continue
			}
			key := urlnorm.Normalize(entry.Loc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.URLs = append(out.URLs, discovery.DiscoveredURL{
				URL:      entry.Loc,
				FileType: discovery.FileTypeFromURL(entry.Loc),
				Source:   discovery.SourceSitemap,
				SourceID: sitemapURL,
				LastMod:  entry.LastMod,
			})
		}
	}

	d.logger.Info("Sitemap walk complete",
		zap.Int("sitemaps_fetched", fetched),
		zap.Int("urls", len(out.URLs)),
		zap.Int("errors", out.Errors),
	)
	return out, nil
}

func (d *Discoverer) load(ctx context.Context, sitemapURL string) (document, error) {
	page, err := d.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return document{}, err
	}
	return parse(page.Body)
}
