package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/progress"
)

// LogSink emits structured logs for debugging progress streams.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", uuid.UUID(evt.RunID)),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Partition != 0 {
			fields = append(fields, zap.Int("partition", evt.Partition))
		}
		if evt.Title != "" {
			fields = append(fields, zap.String("title", evt.Title))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Key != "" {
			fields = append(fields, zap.String("key", evt.Key), zap.Int64("bytes", evt.Bytes))
		}
		if evt.Items > 0 {
			fields = append(fields, zap.Int("items", evt.Items))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
