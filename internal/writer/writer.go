// Package writer is the single consumer of completed lookups. It applies
// records to the sheet and flushes in batches, with one final flush once every
// dispatched row has finished.
package writer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/clock/system"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/metrics"
	"github.com/JakeFAU/reverse411/internal/progress"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultBatchSize = 20
	DefaultPause     = 3 * time.Second
	DefaultIdleWait  = 250 * time.Millisecond
	shutdownTimeout  = 30 * time.Second
)

// Pending is the queue of completed records awaiting persistence.
type Pending interface {
	Len() int
	Drain(n int) []lookup.ResultRecord
	Notify() <-chan struct{}
}

// Completion reports whether every dispatched row has finished.
type Completion interface {
	Complete() bool
	Done() <-chan struct{}
}

// Config controls batching.
type Config struct {
	BatchSize int
	Pause     time.Duration
	IdleWait  time.Duration
	// NoMatchValue is written to the phone column when a lookup finds nothing.
	NoMatchValue string
	RunID        [16]byte
}

// Summary describes what a writer run persisted.
type Summary struct {
	Batches int
	Written int
}

// Writer owns every mutation of the sheet.
type Writer struct {
	sheet   lookup.Sheet
	pending Pending
	done    Completion
	cfg     Config
	events  progress.Emitter
	clock   lookup.Clock
	logger  *zap.Logger

	written atomic.Int64
	summary Summary
}

// New constructs a Writer.
func New(
	sheet lookup.Sheet,
	pending Pending,
	done Completion,
	cfg Config,
	events progress.Emitter,
	clock lookup.Clock,
	logger *zap.Logger,
) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = DefaultIdleWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Writer{
		sheet:   sheet,
		pending: pending,
		done:    done,
		cfg:     cfg,
		events:  progress.OrNop(events),
		clock:   clock,
		logger:  logger,
	}
}

// Written returns the number of rows persisted so far. Safe for concurrent use.
func (w *Writer) Written() int64 {
	return w.written.Load()
}

// Run loops until every row is persisted, a flush fails, or ctx ends. On
// cancellation pending records are flushed best-effort before returning.
func (w *Writer) Run(ctx context.Context) (Summary, error) {
	idle := time.NewTimer(w.cfg.IdleWait)
	defer idle.Stop()

	for {
		if w.done.Complete() {
			if err := w.persist(ctx, w.pending.Drain(0), true); err != nil {
				return w.summary, err
			}
			return w.summary, nil
		}

		if w.pending.Len() >= w.cfg.BatchSize {
			recs := w.pending.Drain(w.cfg.BatchSize)
			if len(recs) < w.cfg.BatchSize {
				w.logger.Warn("pending results underflow",
					zap.Int("requested", w.cfg.BatchSize),
					zap.Int("drained", len(recs)),
				)
			}
			if err := w.persist(ctx, recs, false); err != nil {
				return w.summary, err
			}
			if err := w.pause(ctx); err != nil {
				return w.shutdown(ctx)
			}
			continue
		}

		idle.Reset(w.cfg.IdleWait)
		select {
		case <-ctx.Done():
			return w.shutdown(ctx)
		case <-w.pending.Notify():
		case <-w.done.Done():
		case <-idle.C:
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
	}
}

func (w *Writer) pause(ctx context.Context) error {
	if w.cfg.Pause == 0 {
		return nil
	}
	timer := time.NewTimer(w.cfg.Pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done.Done():
	case <-timer.C:
	}
	return nil
}

func (w *Writer) shutdown(ctx context.Context) (Summary, error) {
	recs := w.pending.Drain(0)
	if len(recs) > 0 {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := w.persist(flushCtx, recs, true); err != nil {
			w.logger.Error("final flush after cancellation failed", zap.Error(err))
		}
	}
	return w.summary, fmt.Errorf("writer stopped: %w", ctx.Err())
}

func (w *Writer) persist(ctx context.Context, recs []lookup.ResultRecord, final bool) error {
	metrics.SetPending(w.pending.Len())
	if len(recs) == 0 {
		return nil
	}
	rows := make([]int, 0, len(recs))
	for _, rec := range recs {
		if w.apply(rec) {
			rows = append(rows, rec.Row)
		}
	}
	if err := w.sheet.Flush(ctx); err != nil {
		return fmt.Errorf("flush workbook: %w", err)
	}

	w.summary.Batches++
	w.summary.Written += len(rows)
	w.written.Add(int64(len(rows)))
	w.logger.Info("rows saved",
		zap.Ints("rows", rows),
		zap.Bool("final", final),
		zap.Int("written_total", w.summary.Written),
	)
	if len(rows) > 0 {
		w.events.Emit(progress.Event{
			RunID: w.cfg.RunID,
			TS:    w.clock.Now().UTC(),
			Stage: progress.StageBatchSaved,
			Rows:  rows,
			Final: final,
		})
	}
	return nil
}

func (w *Writer) apply(rec lookup.ResultRecord) bool {
	row, ok := w.sheet.Row(rec.Row)
	if !ok {
		w.logger.Warn("result for missing row dropped", zap.Int("row", rec.Row))
		return false
	}
	first, last, phone := "", "", ""
	switch rec.Outcome {
	case lookup.OutcomeResolved:
		first, last, phone = rec.FirstName, rec.LastName, rec.Phone
	case lookup.OutcomeNoMatch:
		phone = w.cfg.NoMatchValue
	}
	row.SetCell(lookup.ColFirstName, first)
	row.SetCell(lookup.ColLastName, last)
	row.SetCell(lookup.ColPhone, phone)
	return true
}
