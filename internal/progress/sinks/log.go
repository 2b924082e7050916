// Package sinks holds the progress.Sink implementations shipped with the
// pipeline.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/progress"
)

// LogSink emits structured logs for the progress stream. Useful during
// development or audits where metrics scraping is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("stage", string(evt.Stage)),
		zap.Int("done", evt.Done),
		zap.Int("failed", evt.Failed),
		zap.Int("total", evt.Total),
	}
	if evt.URI != "" {
		fields = append(fields, zap.String("uri", evt.URI))
	}
	if evt.Outcome != "" {
		fields = append(fields, zap.String("outcome", string(evt.Outcome)))
	}
	if evt.Attempts > 0 {
		fields = append(fields, zap.Int("attempts", evt.Attempts))
	}
	if evt.Err != "" {
		fields = append(fields, zap.String("error", evt.Err))
	}
	s.logger.Info("progress", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
