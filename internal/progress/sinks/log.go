package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/progress"
)

// LogSink writes each event as a structured debug line; lifecycle events are
// logged at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs every event in batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageAccount:
			outcomes := make([]string, len(evt.Outcomes))
			for i, o := range evt.Outcomes {
				outcomes[i] = string(o)
			}
			fields = append(fields,
				zap.Int("worker", evt.Worker),
				zap.String("account_id", evt.AccountID),
				zap.Strings("outcomes", outcomes),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("account progress", fields...)
			continue
		case progress.StageJobStart:
			fields = append(fields,
				zap.String("region", evt.Region),
				zap.Bool("ghost", evt.Ghost),
				zap.Int64("target", evt.Target),
				zap.Int("threads", evt.Threads),
			)
		case progress.StageWorkerExit:
			fields = append(fields, zap.Int("worker", evt.Worker))
		default:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("run progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
