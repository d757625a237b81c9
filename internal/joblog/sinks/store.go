package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

// StoreSink persists entries as job_logs rows via a store.JobLogRepository.
// A whole batch is written in one call.
type StoreSink struct {
	repo   store.JobLogRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.JobLogRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume converts the batch and forwards it to the repository. It respects
// ctx deadlines and wraps repository errors.
func (s *StoreSink) Consume(ctx context.Context, batch []joblog.Entry) error {
	if s == nil || s.repo == nil || len(batch) == 0 {
		return nil
	}
	rows := make([]store.JobLog, 0, len(batch))
	for _, entry := range batch {
		rows = append(rows, store.JobLog{
			Type:      entry.Type,
			Status:    string(entry.Status),
			Details:   entry.Details,
			CreatedAt: entry.TS,
		})
	}
	if err := s.repo.AppendJobLogs(ctx, rows); err != nil {
		return fmt.Errorf("append job logs: %w", err)
	}
	s.logger.Debug("Job logs persisted", zap.Int("count", len(rows)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
