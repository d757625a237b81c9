package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/docket-crawler/internal/joblog"
)

// PrometheusSink counts job log entries by type and status.
type PrometheusSink struct {
	entries *prometheus.CounterVec
}

// NewPrometheusSink registers the collector against the provided registry. An
// already registered collector is reused.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_log_entries_total",
		Help: "Job log entries partitioned by type and status.",
	}, []string{"type", "status"})
	if err := reg.Register(entries); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register job log collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("register job log collector: %w", err)
		}
		entries = existing
	}
	return &PrometheusSink{entries: entries}, nil
}

// Consume increments the counter for each entry.
func (s *PrometheusSink) Consume(_ context.Context, batch []joblog.Entry) error {
	for _, entry := range batch {
		s.entries.WithLabelValues(entry.Type, string(entry.Status)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
