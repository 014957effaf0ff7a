package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/progress"
)

// LogSink emits structured logs for progress streams. Row-level stages log at
// debug so that production output stays at one line per batch.
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
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRowDispatched:
			s.logger.Debug("progress event", append(fields, zap.Int("row", evt.Row))...)
		case progress.StageRowDone:
			s.logger.Debug("progress event", append(fields,
				zap.Int("row", evt.Row),
				zap.String("outcome", evt.Outcome),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageBatchSaved:
			s.logger.Info("progress event", append(fields,
				zap.Ints("rows", evt.Rows),
				zap.Bool("final", evt.Final),
			)...)
		default:
			s.logger.Info("progress event", append(fields,
				zap.String("workbook", evt.Workbook),
				zap.Int64("count", evt.Count),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
