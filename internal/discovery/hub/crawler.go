// Package hub discovers documents by walking listing ("hub") pages breadth-first.
package hub

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
)

// Config bounds the crawl.
type Config struct {
	Seeds []string
	// MaxHubs is used when the request does not set one.
	MaxHubs int
	// ProbePages is how many extra listing pages are fetched before inferring the rest.
	ProbePages int
	// MaxInferred caps generated URLs per listing.
	MaxInferred int
}

// Crawler implements discovery.Discoverer for hub pages.
type Crawler struct {
	cfg     Config
	fetcher discovery.PageFetcher
	rules   *discovery.Rules
	logger  *zap.Logger
}

// New builds a Crawler.
func New(cfg Config, fetcher discovery.PageFetcher, rules *discovery.Rules, logger *zap.Logger) *Crawler {
	if cfg.MaxHubs <= 0 {
		cfg.MaxHubs = 50
	}
	if cfg.ProbePages < 0 {
		cfg.ProbePages = 0
	}
	if cfg.MaxInferred <= 0 {
		cfg.MaxInferred = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, fetcher: fetcher, rules: rules, logger: logger}
}

// Source implements discovery.Discoverer.
func (c *Crawler) Source() discovery.Source {
	return discovery.SourceHubScrape
}

// Discover walks the seed hubs and everything reachable through hub links
// until the hub budget is spent. Pagination probes draw from the same budget.
// Page failures are counted, never fatal.
func (c *Crawler) Discover(ctx context.Context, req discovery.Request) (discovery.Output, error) {
	maxHubs := req.MaxHubs
	if maxHubs <= 0 {
		maxHubs = c.cfg.MaxHubs
	}
	pacer := req.Pacer
	if pacer == nil {
		pacer = ratelimit.NoDelay()
	}

	state := newCrawlState()
	state.budget = maxHubs
	for _, seed := range c.cfg.Seeds {
		state.enqueue(seed)
	}

	for state.hasBudget() {
		hubURL, ok := state.next()
		if !ok {
			break
		}
		if err := pacer.Wait(ctx, hubURL); err != nil {
			return state.output(), fmt.Errorf("hub crawl interrupted: %w", err)
		}
		state.fetched++
		c.visit(ctx, pacer, state, hubURL)
	}

	c.logger.Info("Hub crawl complete",
		zap.Int("hubs_fetched", state.fetched),
		zap.Int("urls", len(state.results)),
		zap.Int("errors", state.errors),
		zap.Int("queued_remaining", len(state.queue)),
	)
	return state.output(), nil
}

func (c *Crawler) visit(ctx context.Context, pacer discovery.Pacer, state *crawlState, hubURL string) {
	links, err := c.fetchLinks(ctx, hubURL, "hub")
	if err != nil {
		state.errors++
		c.logger.Warn("Hub fetch failed", zap.String("url", hubURL), zap.Error(err))
		return
	}

	hubs, docs := c.collect(state, hubURL, links)

	listing, err := url.Parse(hubURL)
	if err == nil {
		c.inferPagination(ctx, pacer, state, listing, links, docs)
	}
	for _, h := range hubs {
		state.enqueue(h)
	}
}

// fetchLinks fetches one page and extracts its links. A 403/429 is counted
// under component.
func (c *Crawler) fetchLinks(ctx context.Context, pageURL, component string) ([]discovery.Link, error) {
	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if discovery.IsRateLimited(err) {
			metrics.ObserveRateLimitHit(component)
		}
		return nil, err
	}
	links, err := extractLinks(page)
	if err != nil {
		return nil, fmt.Errorf("extract links from %s: %w", pageURL, err)
	}
	return links, nil
}

// collect records document and content links and returns hub links to
// enqueue plus the document URLs seen on the page.
func (c *Crawler) collect(state *crawlState, origin string, links []discovery.Link) ([]string, []*url.URL) {
	var hubs []string
	var docs []*url.URL
	for _, link := range links {
		switch c.rules.Classify(link) {
		case discovery.LinkDocument:
			docs = append(docs, link.URL)
			state.add(c.item(link.URL.String(), link.Text, origin, false))
		case discovery.LinkContent:
			state.add(c.item(link.URL.String(), link.Text, origin, false))
		case discovery.LinkHub:
			hubs = append(hubs, link.URL.String())
		case discovery.LinkIgnore:
		}
	}
	return hubs, docs
}

// inferPagination handles listings whose documents are numbered sequentially.
// Up to ProbePages further pages are fetched; the first failure stops probing.
// Remaining item URLs are then generated from the observed range without fetching.
func (c *Crawler) inferPagination(
	ctx context.Context,
	pacer discovery.Pacer,
	state *crawlState,
	listing *url.URL,
	links []discovery.Link,
	docs []*url.URL,
) {
	seq := detectSequence(docs)
	if seq == nil {
		return
	}
	pg := parsePager(listing, links)
	if pg.total < 2 {
		return
	}
	perPage := len(seq.numbers)
	for k := 1; k <= pg.total; k++ {
		if u := pg.pageURL(k); u != "" {
			state.markVisited(u)
		}
	}

	probed := 0
	for k := 2; k <= pg.total && probed < c.cfg.ProbePages && state.hasBudget(); k++ {
		pageURL := pg.pageURL(k)
		if pageURL == "" {
			break
		}
		if err := pacer.Wait(ctx, pageURL); err != nil {
			return
		}
		probed++
		state.fetched++
		pageLinks, err := c.fetchLinks(ctx, pageURL, "hub-pagination")
		if err != nil {
			c.logger.Info("Pagination probe failed, inferring remaining items",
				zap.String("listing", listing.String()),
				zap.Int("page", k),
				zap.Error(err),
			)
			break
		}
		hubs, pageDocs := c.collect(state, pageURL, pageLinks)
		for _, d := range pageDocs {
			seq.absorb(d)
		}
		for _, h := range hubs {
			state.enqueue(h)
		}
	}

	missing := missingNumbers(seq, perPage, pg.total, c.cfg.MaxInferred)
	origin := listing.String()
	for _, n := range missing {
		state.add(c.item(seq.format(n), "", origin, true))
	}
	if len(missing) > 0 {
		c.logger.Info("Inferred paginated documents",
			zap.String("listing", origin),
			zap.Int("total_pages", pg.total),
			zap.Int("per_page", perPage),
			zap.Int("inferred", len(missing)),
		)
	}
}

func (c *Crawler) item(rawURL, title, origin string, speculative bool) discovery.DiscoveredURL {
	return discovery.DiscoveredURL{
		URL:         rawURL,
		Title:       title,
		FileType:    discovery.FileTypeFromURL(rawURL),
		Source:      discovery.SourceHubScrape,
		SourceID:    origin,
		Speculative: speculative,
	}
}

// crawlState is the FIFO queue, visited set and result list of one crawl.
type crawlState struct {
	queue   []string
	visited map[string]struct{}
	seen    map[string]struct{}
	results []discovery.DiscoveredURL
	errors  int
	fetched int
	budget  int
}

// hasBudget reports whether another listing page may be fetched.
func (s *crawlState) hasBudget() bool {
	return s.fetched < s.budget
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
}

func (s *crawlState) enqueue(rawURL string) {
	key := urlnorm.Normalize(rawURL)
	if _, ok := s.visited[key]; ok {
		return
	}
	s.visited[key] = struct{}{}
	s.queue = append(s.queue, rawURL)
}

func (s *crawlState) markVisited(rawURL string) {
	s.visited[urlnorm.Normalize(rawURL)] = struct{}{}
}

func (s *crawlState) next() (string, bool) {
	if len(s.queue) == 0 {
		return "", false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head, true
}

func (s *crawlState) add(item discovery.DiscoveredURL) {
	key := urlnorm.Normalize(item.URL)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.results = append(s.results, item)
}

func (s *crawlState) output() discovery.Output {
	return discovery.Output{URLs: s.results, Errors: s.errors}
}
