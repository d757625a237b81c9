package joblog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/docket-crawler/internal/metrics"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: entries held between Emit and the batcher (default 1024).
//   - MaxBatchEntries: a batch is handed to sinks once it reaches this size (default 100).
//   - MaxBatchWait: a partial batch is handed over after this long (default 500ms).
//   - SinkTimeout: deadline for one Consume call (default 10s).
//   - BaseContext: parent of every sink context (default context.Background()).
//   - Logger: receives drop and sink warnings.
type Config struct {
	BufferSize      int
	MaxBatchEntries int
	MaxBatchWait    time.Duration
	SinkTimeout     time.Duration
	BaseContext     context.Context
	Logger          *zap.Logger
}

const (
	defaultBufferSize      = 1024
	defaultMaxBatchEntries = 100
	defaultMaxBatchWait    = 500 * time.Millisecond
	defaultSinkTimeout     = 10 * time.Second
	dropWarnInterval       = 5 * time.Second
)

// Reasons an entry is discarded before reaching a sink.
const (
	DropInvalid      = "invalid"
	DropClosed       = "closed"
	DropBackpressure = "backpressure"
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEntries <= 0 {
		c.MaxBatchEntries = defaultMaxBatchEntries
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub batches discovery, extraction and batch-run entries and fans them out
// to sinks from one background goroutine. Emit never blocks; entries that
// cannot be queued are counted in joblog_entries_dropped_total.
type Hub struct {
	cfg     Config
	sinks   []Sink
	queue   chan Entry
	stop    chan struct{}
	done    chan struct{}
	warn    *rate.Sometimes
	dropped atomic.Int64
	pending atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batcher and returns a Hub ready for Emit.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	h := &Hub{
		cfg:   cfg,
		sinks: live,
		queue: make(chan Entry, cfg.BufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		warn:  &rate.Sometimes{Interval: dropWarnInterval},
	}
	go h.run()
	return h
}

// Emit queues entry for the next batch. Invalid entries, entries emitted
// after Close and entries that find the buffer full are dropped.
func (h *Hub) Emit(entry Entry) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		h.drop(entry, DropClosed)
		return
	}
	if err := entry.Validate(); err != nil {
		h.cfg.Logger.Debug("Discarding invalid job log entry", zap.String("type", entry.Type), zap.Error(err))
		h.drop(entry, DropInvalid)
		return
	}
	select {
	case h.queue <- entry:
		h.pending.Add(1)
	default:
		h.drop(entry, DropBackpressure)
		h.warn.Do(func() {
			h.cfg.Logger.Warn("Job log buffer full, dropping entries",
				zap.String("type", entry.Type),
				zap.Int64("dropped_total", h.dropped.Load()),
				zap.Int("buffer_size", h.cfg.BufferSize),
			)
		})
	}
}

// Dropped returns how many entries this hub has discarded.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Pending returns how many queued entries have not yet been handed to sinks.
func (h *Hub) Pending() int64 {
	if h == nil {
		return 0
	}
	return h.pending.Load()
}

func (h *Hub) drop(entry Entry, reason string) {
	h.dropped.Add(1)
	metrics.ObserveJobLogDropped(entry.Type, reason)
}

// Close stops intake, flushes queued entries and closes every sink. Only the
// first call's ctx is handed to the sinks; every call waits on its own ctx.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job log hub close wait: %w", ctx.Err())
	}
}

// run owns the open batch. deadline is armed by the first entry of a batch
// and disarmed whenever the batch is handed over.
func (h *Hub) run() {
	defer close(h.done)
	batch := make([]Entry, 0, h.cfg.MaxBatchEntries)
	var deadline <-chan time.Time

	handOver := func() {
		if len(batch) > 0 {
			h.flush(batch)
			batch = batch[:0]
		}
		deadline = nil
	}

	for {
		select {
		case entry := <-h.queue:
			if len(batch) == 0 {
				deadline = time.After(h.cfg.MaxBatchWait)
			}
			batch = append(batch, entry)
			if len(batch) >= h.cfg.MaxBatchEntries {
				handOver()
			}
		case <-deadline:
			handOver()
		case <-h.stop:
			for drained := false; !drained; {
				select {
				case entry := <-h.queue:
					batch = append(batch, entry)
					if len(batch) >= h.cfg.MaxBatchEntries {
						handOver()
					}
				default:
					drained = true
				}
			}
			handOver()
			h.closeSinks()
			return
		}
	}
}

// flush hands one batch to every sink. A failing sink is logged and does not
// keep the batch from the others.
func (h *Hub) flush(batch []Entry) {
	out := append([]Entry(nil), batch...)
	defer h.pending.Add(-int64(len(out)))
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.cfg.Logger.Warn("Job log sink consume failed",
				zap.Int("entries", len(out)),
				zap.String("first_type", out[0].Type),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.cfg.Logger.Warn("Job log sink close failed", zap.Error(err))
		}
	}
}
