// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/api"
	"github.com/JakeFAU/docket-crawler/internal/config"
	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/discovery/archive"
	"github.com/JakeFAU/docket-crawler/internal/discovery/hub"
	"github.com/JakeFAU/docket-crawler/internal/discovery/sitemap"
	"github.com/JakeFAU/docket-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/docket-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/joblog/sinks"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	memorypublisher "github.com/JakeFAU/docket-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/docket-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/docket-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/docket-crawler/internal/storage/postgres"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/telemetry"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
	"github.com/JakeFAU/docket-crawler/internal/worker"
)

// Version is stamped into spans; overridden at link time.
var Version = "dev"

// App holds all the shared, long-lived services for the application.
// It is built once at startup and closed by the command that built it.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	catalog      store.Catalog
	migrator     Migrator
	jobHub       *joblog.Hub
	publisher    extract.Publisher
	closePublish func() error
	tracer       *sdktrace.TracerProvider

	orchestrator *discovery.Orchestrator
	pipeline     *extract.Pipeline
	batch        *worker.Batch
}

// Migrator applies the catalog schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	transport  http.RoundTripper
	catalog    store.Catalog
	registerer prometheus.Registerer
}

// WithTransport routes every outbound request through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *buildOptions) {
		o.transport = rt
	}
}

// WithCatalog skips store construction and uses catalog instead.
func WithCatalog(catalog store.Catalog) Option {
	return func(o *buildOptions) {
		o.catalog = catalog
	}
}

// WithRegisterer sets where the job log metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// Build creates the application's dependencies. It fails fast when a
// configured backend cannot be reached.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bo := buildOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&bo)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	logger.Info("Building application services",
		zap.String("store", cfg.Store.Driver),
		zap.String("publisher", cfg.PubSub.Driver),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{Version: Version})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracer = tp

	if err := a.setupCatalog(ctx, bo.catalog); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupJobLog(ctx, bo.registerer); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupDiscovery(bo.transport); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.setupExtraction(bo.transport)

	logger.Info("Application services initialized")
	return a, nil
}

func (a *App) setupCatalog(ctx context.Context, injected store.Catalog) error {
	if injected != nil {
		a.catalog = injected
		if m, ok := injected.(Migrator); ok {
			a.migrator = m
		}
		return nil
	}
	switch a.cfg.Store.Driver {
	case "postgres":
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("catalog init failed: %w", err)
		}
		a.catalog = pg
		a.migrator = pg
		a.logger.Info("Using Postgres catalog")
	default:
		a.catalog = memory.NewCatalogStore()
		a.logger.Warn("Using in-memory catalog; documents are lost on exit")
	}
	return nil
}

func (a *App) setupJobLog(ctx context.Context, reg prometheus.Registerer) error {
	sinkList := []joblog.Sink{sinks.NewLogSink(a.logger.Named("joblog"))}
	if reg != nil {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("job log metrics init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if a.cfg.JobLog.PersistToStore {
		sinkList = append(sinkList, sinks.NewStoreSink(a.catalog, a.logger.Named("joblog_store")))
	}
	hubCfg := joblog.Config{
		BufferSize:      a.cfg.JobLog.BufferSize,
		MaxBatchEntries: a.cfg.JobLog.MaxBatchEntries,
		MaxBatchWait:    time.Duration(a.cfg.JobLog.MaxBatchWaitMs) * time.Millisecond,
		BaseContext:     context.WithoutCancel(ctx),
		Logger:          a.logger.Named("joblog_hub"),
	}
	a.jobHub = joblog.NewHub(hubCfg, sinkList...)
	a.logger.Debug("Job log hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Driver {
	case "pubsub":
		pub, closeFn, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		a.closePublish = closeFn
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("Using in-memory publisher")
	default:
		a.logger.Info("Indexed-document events disabled")
	}
	return nil
}

func (a *App) setupDiscovery(transport http.RoundTripper) error {
	dc := a.cfg.Discovery
	rules, err := discovery.NewRules(discovery.RulesConfig{
		AllowedHosts:       dc.AllowedHosts,
		AllowPathPatterns:  dc.AllowPathPatterns,
		DocumentExtensions: dc.DocumentExtensions,
		HubPathPatterns:    dc.HubPathPatterns,
		HubTextPatterns:    dc.HubTextPatterns,
	})
	if err != nil {
		return fmt.Errorf("discovery rules: %w", err)
	}

	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.HTTPTimeout(),
	}, transport)

	var discoverers []discovery.Discoverer
	if len(dc.Hub.Seeds) > 0 {
		discoverers = append(discoverers, hub.New(hub.Config{
			Seeds:       dc.Hub.Seeds,
			MaxHubs:     dc.MaxHubs,
			ProbePages:  dc.Hub.ProbePages,
			MaxInferred: dc.Hub.MaxInferred,
		}, pages.WithComponent("hub"), rules, a.logger.Named("hub")))
	}
	if len(dc.Sitemap.Seeds) > 0 {
		discoverers = append(discoverers, sitemap.New(sitemap.Config{
			Seeds:       dc.Sitemap.Seeds,
			MaxSitemaps: dc.Sitemap.MaxSitemaps,
		}, pages.WithComponent("sitemap"), rules, a.logger.Named("sitemap")))
	}
	if len(dc.Archive.Patterns) > 0 {
		discoverers = append(discoverers, archive.New(archive.Config{
			Endpoint:  dc.Archive.Endpoint,
			Patterns:  dc.Archive.Patterns,
			MimeTypes: dc.Archive.MimeTypes,
			Limit:     dc.Archive.Limit,
		}, pages.WithComponent("archive"), a.logger.Named("archive")))
	}
	if len(discoverers) == 0 {
		a.logger.Warn("No discovery seeds or archive patterns configured")
	}

	resolver := urlnorm.NewResolver(urlnorm.ResolverConfig{
		MaxHops:   dc.MaxRedirects,
		Timeout:   a.cfg.HTTPTimeout(),
		UserAgent: a.cfg.HTTP.UserAgent,
	}, &http.Client{Transport: transport}, a.logger.Named("resolver"))

	a.orchestrator = discovery.NewOrchestrator(a.catalog, discoverers, a.logger.Named("discovery"),
		discovery.WithJobLog(a.jobHub),
		discovery.WithResolver(resolver),
	)
	return nil
}

func (a *App) setupExtraction(transport http.RoundTripper) {
	ec := a.cfg.Extract
	fetcher := extract.NewHTTPFetcher(extract.HTTPConfig{
		UserAgent:    a.cfg.HTTP.UserAgent,
		Timeout:      time.Duration(ec.TimeoutSeconds) * time.Second,
		MaxBytes:     ec.MaxBodyBytes,
		MaxRedirects: a.cfg.Discovery.MaxRedirects,
	}, transport, a.logger.Named("fetch"))

	opts := []extract.Option{extract.WithJobLog(a.jobHub)}
	if a.publisher != nil {
		opts = append(opts, extract.WithPublisher(a.publisher))
	}
	a.pipeline = extract.New(extract.Config{
		Thresholds: extract.Thresholds{
			MinTextLength:   ec.MinTextLength,
			MinCharsPerPage: float64(ec.MinCharsPerPage),
		},
		Topic: ec.Topic,
	}, a.catalog, fetcher, a.logger.Named("extract"), opts...)
	a.batch = worker.New(a.catalog, a.pipeline, a.jobHub, a.logger.Named("batch"))
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Catalog exposes the document catalog.
func (a *App) Catalog() store.Catalog {
	return a.catalog
}

// Orchestrator runs discovery.
func (a *App) Orchestrator() *discovery.Orchestrator {
	return a.orchestrator
}

// Publisher returns the indexed-document event publisher, or nil when events
// are disabled.
func (a *App) Publisher() extract.Publisher {
	return a.publisher
}

// Pipeline processes single documents.
func (a *App) Pipeline() *extract.Pipeline {
	return a.pipeline
}

// Batch drains pending documents.
func (a *App) Batch() *worker.Batch {
	return a.batch
}

// DiscoveryOptions returns run options from the configured defaults.
func (a *App) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		MaxHubs:          a.cfg.Discovery.MaxHubs,
		Delay:            a.cfg.DiscoveryDelay(),
		ResolveRedirects: a.cfg.Discovery.ResolveRedirects,
	}
}

// BatchOptions returns pending-batch options from the configured defaults.
func (a *App) BatchOptions() worker.Options {
	return worker.Options{Limit: a.cfg.Extract.BatchLimit, Delay: a.cfg.BatchDelay()}
}

// APIServer builds the HTTP surface over the App's services.
func (a *App) APIServer() *api.Server {
	opts := a.DiscoveryOptions()
	batch := a.BatchOptions()
	return api.NewServer(api.Deps{
		Discovery: a.orchestrator,
		Processor: a.pipeline,
		Pending:   a.batch,
		Catalog:   a.catalog,
	}, api.Defaults{
		MaxHubs:          opts.MaxHubs,
		Delay:            opts.Delay,
		ResolveRedirects: opts.ResolveRedirects,
		BatchLimit:       batch.Limit,
		BatchDelay:       batch.Delay,
	}, a.logger.Named("api"))
}

// Migrate applies the catalog schema. The in-memory catalog needs none.
func (a *App) Migrate(ctx context.Context) error {
	if a.migrator == nil {
		a.logger.Info("Catalog has no schema to migrate", zap.String("store", a.cfg.Store.Driver))
		return nil
	}
	if err := a.migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

// Close shuts services down in reverse dependency order. The job log hub is
// drained before the catalog it writes to is closed.
func (a *App) Close(ctx context.Context) {
	if a.jobHub != nil {
		if err := a.jobHub.Close(ctx); err != nil {
			a.logger.Warn("Job log hub close failed", zap.Error(err))
		}
	}
	if a.closePublish != nil {
		if err := a.closePublish(); err != nil {
			a.logger.Warn("Publisher close failed", zap.Error(err))
		}
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("Logger sync failed", zap.Error(err))
	}
}
