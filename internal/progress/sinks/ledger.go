package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/progress"
	"github.com/JakeFAU/reverse411/internal/store"
)

// LedgerSink persists run headers and row outcomes via a store.LedgerRepository.
// Row outcomes within one batch are written in a single call.
type LedgerSink struct {
	repo   store.LedgerRepository
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for the provided repository.
func NewLedgerSink(repo store.LedgerRepository, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{repo: repo, logger: logger}
}

// Consume forwards the batch to the repository in event order: run starts
// first, then row outcomes, then completions.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var (
		outcomes    []store.RowOutcome
		completions []progress.Event
	)
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunUUID(), evt.Workbook, evt.Count, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRowDone:
			outcomes = append(outcomes, store.RowOutcome{
				RunID:      evt.RunUUID(),
				Row:        evt.Row,
				Outcome:    evt.Outcome,
				Phone:      evt.Phone,
				RecordedAt: evt.TS,
			})
		case progress.StageRunDone, progress.StageRunError:
			completions = append(completions, evt)
		}
	}

	if err := s.repo.RecordOutcomes(ctx, outcomes); err != nil {
		return fmt.Errorf("record outcomes: %w", err)
	}
	for _, evt := range completions {
		if err := s.complete(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerSink) complete(ctx context.Context, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	}
	if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, evt.Count, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
