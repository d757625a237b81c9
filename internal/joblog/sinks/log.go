package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/joblog"
)

// LogSink emits structured logs for each job log entry. It is useful during
// development or when no database is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each entry; ERROR entries are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []joblog.Entry) error {
	for _, entry := range batch {
		fields := []zap.Field{
			zap.String("type", entry.Type),
			zap.String("status", string(entry.Status)),
			zap.String("details", entry.Details),
			zap.Time("ts", entry.TS),
		}
		if entry.Status == joblog.StatusError {
			s.logger.Warn("Job log", fields...)
			continue
		}
		s.logger.Info("Job log", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
