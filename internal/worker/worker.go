// Package worker runs the batch extraction scan over pending documents.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

const defaultLimit = 50

// Processor handles one document.
type Processor interface {
	ProcessDocument(ctx context.Context, rawURL, title string) error
}

// Lister finds documents waiting for extraction.
type Lister interface {
	ListByStatus(ctx context.Context, statuses []store.DocumentStatus, limit int) ([]store.Document, error)
}

// Pacer spaces consecutive fetches to the same origin.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Options bound one batch pass.
type Options struct {
	Limit int
	Delay time.Duration
}

// Summary reports a finished pass.
type Summary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Batch pulls pending and needs_ocr documents and processes them one at a time.
type Batch struct {
	lister    Lister
	processor Processor
	jobs      joblog.Emitter
	logger    *zap.Logger
	pacerFor  func(time.Duration) Pacer
}

// New constructs a Batch.
func New(lister Lister, processor Processor, jobs joblog.Emitter, logger *zap.Logger) *Batch {
	if jobs == nil {
		jobs = joblog.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{
		lister:    lister,
		processor: processor,
		jobs:      jobs,
		logger:    logger,
		pacerFor: func(delay time.Duration) Pacer {
			return ratelimit.New(ratelimit.Config{Delay: delay})
		},
	}
}

// ProcessAllPending processes up to opts.Limit documents oldest first. Item
// failures are counted and never stop the pass; only a failed listing or a
// cancelled context is returned.
func (b *Batch) ProcessAllPending(ctx context.Context, opts Options) (Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	docs, err := b.lister.ListByStatus(ctx, []store.DocumentStatus{store.StatusPending, store.StatusNeedsOCR}, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending documents: %w", err)
	}
	b.logger.Info("Batch extraction started", zap.Int("documents", len(docs)), zap.Duration("delay", opts.Delay))
	b.jobs.Emit(joblog.Info(joblog.TypeBatch, "processing %d documents", len(docs)))

	pacer := b.pacerFor(opts.Delay)
	var summary Summary
	for _, doc := range docs {
		if err := pacer.Wait(ctx, doc.SourceURL); err != nil {
			return summary, fmt.Errorf("batch interrupted: %w", err)
		}
		if err := b.processor.ProcessDocument(ctx, doc.SourceURL, doc.Title); err != nil {
			summary.Errors++
			b.logger.Warn("Batch item failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		summary.Processed++
	}

	b.logger.Info("Batch extraction complete",
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
	)
	status := joblog.StatusSuccess
	if summary.Errors > 0 {
		status = joblog.StatusError
	}
	b.jobs.Emit(joblog.Entry{
		Type:    joblog.TypeBatch,
		Status:  status,
		Details: fmt.Sprintf("processed=%d errors=%d", summary.Processed, summary.Errors),
		TS:      time.Now().UTC(),
	})
	return summary, nil
}
