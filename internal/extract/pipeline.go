package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/clock/system"
	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
)

// DefaultTopic is the event name used for indexed-document notifications.
const DefaultTopic = "document.indexed"

const tracerName = "github.com/JakeFAU/docket-crawler/internal/extract"

// Publisher notifies downstream consumers about newly indexed text.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock supplies fetch timestamps.
type Clock interface {
	Now() time.Time
}

// IndexedEvent is published after a document reaches the indexed status.
type IndexedEvent struct {
	DocumentID   string    `json:"document_id"`
	SourceURL    string    `json:"source_url"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	FileType     string    `json:"file_type"`
	TextHash     string    `json:"text_hash"`
	LengthChars  int       `json:"length_chars"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Config tunes the pipeline.
type Config struct {
	Thresholds Thresholds
	Topic      string
}

// Pipeline processes one document at a time.
type Pipeline struct {
	cfg       Config
	catalog   store.DocumentRepository
	fetcher   Fetcher
	publisher Publisher
	jobs      joblog.Emitter
	clock     Clock
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher enables indexed-document events.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) {
		pl.publisher = p
	}
}

// WithJobLog routes per-document outcomes to emitter.
func WithJobLog(emitter joblog.Emitter) Option {
	return func(pl *Pipeline) {
		if emitter != nil {
			pl.jobs = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(pl *Pipeline) {
		if clock != nil {
			pl.clock = clock
		}
	}
}

// New constructs a Pipeline. Zero thresholds fall back to DefaultThresholds.
func New(cfg Config, catalog store.DocumentRepository, fetcher Fetcher, logger *zap.Logger, opts ...Option) *Pipeline {
	if cfg.Thresholds.MinTextLength <= 0 {
		cfg.Thresholds.MinTextLength = DefaultThresholds.MinTextLength
	}
	if cfg.Thresholds.MinCharsPerPage <= 0 {
		cfg.Thresholds.MinCharsPerPage = DefaultThresholds.MinCharsPerPage
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:     cfg,
		catalog: catalog,
		fetcher: fetcher,
		jobs:    joblog.Discard,
		clock:   system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument fetches rawURL, extracts its text and stores the result.
// It is safe to re-run. Any failure leaves the record in the error status
// and is returned; low-quality content is not an error.
func (p *Pipeline) ProcessDocument(ctx context.Context, rawURL, title string) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "extract.ProcessDocument")
	span.SetAttributes(attribute.String("document.url", rawURL))
	canonical := urlnorm.Normalize(rawURL)
	docID := ""
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process %s panicked: %v", rawURL, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.fail(ctx, docID, rawURL, canonical, title, err)
		}
		span.End()
	}()

	prev, found, err := p.lookup(ctx, rawURL, canonical)
	if err != nil {
		return err
	}
	if found {
		docID = prev.ID
		if err := p.catalog.SetStatus(ctx, prev.ID, store.StatusProcessing); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	} else {
		doc, err := p.catalog.UpsertStatus(ctx, rawURL, canonical, title, store.StatusProcessing)
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		docID = doc.ID
		prev = doc
	}

	res, err := p.fetcher.Fetch(ctx, FetchRequest{
		URL:          rawURL,
		ETag:         deref(prev.HTTPETag),
		LastModified: deref(prev.HTTPLastModified),
	})
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			metrics.ObserveRateLimitHit("extract")
			p.logger.Warn("Rate limited while fetching document", zap.String("url", rawURL), zap.Error(err))
		}
		return err
	}
	now := p.clock.Now()

	if res.NotModified {
		return p.touch(ctx, prev, res, now, restoreStatus(prev.Status), "not modified")
	}

	byteHash := urlnorm.HashBytes(res.Body)
	if found && prev.Status == store.StatusIndexed && prev.ByteHash != nil && *prev.ByteHash == byteHash {
		return p.touch(ctx, prev, res, now, store.StatusIndexed, "unchanged bytes")
	}

	update, assessment := p.extract(rawURL, res, byteHash, now)
	if err := p.catalog.SaveExtraction(ctx, docID, update); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	metrics.ObserveExtraction(string(assessment.Status))
	span.SetAttributes(
		attribute.String("document.id", docID),
		attribute.String("document.status", string(assessment.Status)),
	)
	p.logger.Info("Document processed",
		zap.String("url", rawURL),
		zap.String("status", string(assessment.Status)),
		zap.String("file_type", string(update.FileType)),
		zap.Int("length", assessment.Length),
		zap.Float64("quality", assessment.Quality),
	)
	entry := joblog.Success(joblog.TypeExtraction, "%s: %s (%d chars)", rawURL, assessment.Status, assessment.Length)
	if assessment.Status == store.StatusError {
		entry = joblog.Error(joblog.TypeExtraction, "%s: no usable text", rawURL)
	}
	p.jobs.Emit(entry)

	if assessment.Status == store.StatusIndexed {
		p.publish(ctx, IndexedEvent{
			DocumentID:   docID,
			SourceURL:    prev.SourceURL,
			CanonicalURL: canonical,
			FileType:     string(update.FileType),
			TextHash:     deref(update.TextHash),
			LengthChars:  assessment.Length,
			IndexedAt:    now,
		})
	}
	return nil
}

func (p *Pipeline) lookup(ctx context.Context, rawURL, canonical string) (store.Document, bool, error) {
	doc, err := p.catalog.GetDocumentBySourceURL(ctx, rawURL)
	if err == nil {
		return doc, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Document{}, false, fmt.Errorf("lookup %s: %w", rawURL, err)
	}
	doc, err = p.catalog.GetDocumentByCanonicalURL(ctx, canonical)
	if err == nil {
		return doc, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Document{}, false, fmt.Errorf("lookup %s: %w", canonical, err)
	}
	return store.Document{}, false, nil
}

func (p *Pipeline) touch(
	ctx context.Context,
	prev store.Document,
	res FetchResult,
	now time.Time,
	status store.DocumentStatus,
	reason string,
) error {
	err := p.catalog.TouchFetch(ctx, prev.ID, store.FetchTouch{
		FinalURL:         optional(res.FinalURL),
		HTTPETag:         optional(res.ETag),
		HTTPLastModified: optional(res.LastModified),
		LastFetchedAt:    now,
		Status:           status,
	})
	if err != nil {
		return fmt.Errorf("touch fetch metadata: %w", err)
	}
	metrics.ObserveExtraction("skipped")
	p.logger.Debug("Skipping extraction", zap.String("url", prev.SourceURL), zap.String("reason", reason))
	p.jobs.Emit(joblog.Info(joblog.TypeExtraction, "%s: %s, skipped", prev.SourceURL, reason))
	return nil
}

func (p *Pipeline) extract(
	rawURL string,
	res FetchResult,
	byteHash string,
	now time.Time,
) (store.ExtractionUpdate, Assessment) {
	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	fileType := ClassifyContent(res.ContentType, finalURL, res.Body)

	var (
		out Extracted
		err error
	)
	switch fileType {
	case store.FileTypePDF:
		out, err = ExtractPDF(res.Body)
	case store.FileTypeHTML:
		out, err = ExtractHTML(res.Body)
	default:
		p.logger.Warn("Unsupported content type",
			zap.String("url", rawURL),
			zap.String("content_type", res.ContentType),
		)
	}
	if err != nil {
		p.logger.Warn("Text extraction failed", zap.String("url", rawURL), zap.Error(err))
		out = Extracted{}
	}

	assessment := Assess(fileType, out.Text, out.Pages, p.cfg.Thresholds)
	update := store.ExtractionUpdate{
		FinalURL:          optional(res.FinalURL),
		FileType:          fileType,
		ByteHash:          &byteHash,
		HTTPETag:          optional(res.ETag),
		HTTPLastModified:  optional(res.LastModified),
		LastFetchedAt:     now,
		ExtractionQuality: &assessment.Quality,
		OCRRequired:       assessment.OCRRequired,
		Status:            assessment.Status,
	}
	if out.Text != "" {
		textHash := urlnorm.HashText(out.Text)
		update.RawText = &out.Text
		update.TextHash = &textHash
	}
	length := assessment.Length
	update.LengthChars = &length
	if fileType == store.FileTypePDF {
		pages := out.Pages
		update.PageCount = &pages
	}
	return update, assessment
}

func (p *Pipeline) publish(ctx context.Context, event IndexedEvent) {
	if p.publisher == nil {
		return
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		p.logger.Warn("Publish indexed event failed", zap.String("document_id", event.DocumentID), zap.Error(err))
	}
}

// fail forces the record into the error status. A record that could not be
// marked processing is created by the upsert.
func (p *Pipeline) fail(ctx context.Context, docID, rawURL, canonical, title string, cause error) {
	metrics.ObserveExtraction(string(store.StatusError))
	p.logger.Error("Document processing failed", zap.String("url", rawURL), zap.Error(cause))
	p.jobs.Emit(joblog.Error(joblog.TypeExtraction, "%s: %v", rawURL, cause))

	var err error
	if docID != "" {
		err = p.catalog.SetStatus(ctx, docID, store.StatusError)
	} else {
		_, err = p.catalog.UpsertStatus(ctx, rawURL, canonical, title, store.StatusError)
	}
	if err != nil {
		p.logger.Error("Recording error status failed", zap.String("url", rawURL), zap.Error(err))
	}
}

// restoreStatus is the status a not-modified document returns to.
func restoreStatus(prior store.DocumentStatus) store.DocumentStatus {
	if prior == "" || prior == store.StatusProcessing {
		return store.StatusPending
	}
	return prior
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
