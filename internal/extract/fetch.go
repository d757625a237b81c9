package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
)

var (
	// ErrRateLimited marks a 403 or 429 response.
	ErrRateLimited = errors.New("rate limited")
	// ErrTooLarge marks a body over the configured byte cap.
	ErrTooLarge = errors.New("document exceeds size limit")
)

const (
	defaultMaxBytes     = 50 << 20
	defaultFetchTimeout = 60 * time.Second
	defaultMaxRedirects = 5
)

// FetchRequest names the URL and the validators from the previous fetch.
type FetchRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// FetchResult is a completed fetch. Body is empty when NotModified is set.
type FetchResult struct {
	NotModified  bool
	StatusCode   int
	FinalURL     string
	ContentType  string
	ETag         string
	LastModified string
	Body         []byte
}

// Fetcher performs conditional document downloads.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// HTTPConfig tunes HTTPFetcher.
type HTTPConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
}

// HTTPFetcher downloads documents into memory with a hard size cap.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *zap.Logger
}

// NewHTTPFetcher builds a fetcher; transport may be nil for the default.
func NewHTTPFetcher(cfg HTTPConfig, transport http.RoundTripper, logger *zap.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxHops := cfg.MaxRedirects
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHops {
				return fmt.Errorf("stopped after %d redirects", maxHops)
			}
			return nil
		},
	}
	return &HTTPFetcher{client: client, userAgent: cfg.UserAgent, maxBytes: cfg.MaxBytes, logger: logger}
}

// Fetch issues a GET carrying If-None-Match / If-Modified-Since when the
// request has validators. 403 and 429 wrap ErrRateLimited; other non-2xx
// responses are returned as *discovery.StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("build request for %s: %w", req.URL, err)
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.5")
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		metrics.ObserveFetch("extract", req.URL, 0, 0, time.Since(start))
		return FetchResult{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	result := FetchResult{
		StatusCode:   resp.StatusCode,
		FinalURL:     resp.Request.URL.String(),
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.NotModified = true
		metrics.ObserveFetch("extract", req.URL, resp.StatusCode, 0, time.Since(start))
		return result, nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		metrics.ObserveFetch("extract", req.URL, resp.StatusCode, 0, time.Since(start))
		return result, fmt.Errorf("%w: %w", ErrRateLimited,
			&discovery.StatusError{URL: req.URL, StatusCode: resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.ObserveFetch("extract", req.URL, resp.StatusCode, 0, time.Since(start))
		return result, &discovery.StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return result, fmt.Errorf("%s declares %d bytes: %w", req.URL, resp.ContentLength, ErrTooLarge)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return result, fmt.Errorf("read %s: %w", req.URL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return result, fmt.Errorf("%s: %w", req.URL, ErrTooLarge)
	}
	result.Body = body
	metrics.ObserveFetch("extract", req.URL, resp.StatusCode, len(body), time.Since(start))
	f.logger.Debug("Fetched document",
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return result, nil
}
