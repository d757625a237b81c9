package urlnorm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrTooManyRedirects is returned by the probe when the hop limit is exceeded.
var ErrTooManyRedirects = errors.New("too many redirects")

// ResolverConfig bounds the redirect probe.
type ResolverConfig struct {
	MaxHops   int
	Timeout   time.Duration
	UserAgent string
}

// Resolver follows redirects with HEAD requests to find a URL's final location.
type Resolver struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewResolver builds a Resolver. A nil client gets a fresh http.Client.
func NewResolver(cfg ResolverConfig, client *http.Client, logger *zap.Logger) *Resolver {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	probe := &http.Client{Timeout: cfg.Timeout}
	if client != nil {
		probe.Transport = client.Transport
	}
	probe.CheckRedirect = redirectPolicy(cfg.MaxHops)
	return &Resolver{client: probe, userAgent: cfg.UserAgent, logger: logger}
}

// Resolve returns the post-redirect URL for rawURL, or rawURL itself when the
// probe fails for any reason.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("Redirect probe failed", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest || resp.Request == nil || resp.Request.URL == nil {
		return rawURL
	}
	return resp.Request.URL.String()
}

func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}
