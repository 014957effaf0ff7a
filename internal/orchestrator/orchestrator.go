// Package orchestrator wires the catalog, dispatcher, worker pool and writer
// into one resumable run and joins them before returning.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/reverse411/internal/catalog"
	"github.com/JakeFAU/reverse411/internal/clock/system"
	"github.com/JakeFAU/reverse411/internal/dispatcher"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/progress"
	"github.com/JakeFAU/reverse411/internal/queue/memory"
	"github.com/JakeFAU/reverse411/internal/worker"
	"github.com/JakeFAU/reverse411/internal/writer"
)

// Config carries the knobs for one run.
type Config struct {
	RunID       uuid.UUID
	Workbook    string
	FromRow     int
	Target      catalog.Target
	Dispatch    dispatcher.Config
	Writer      writer.Config
	MaxInFlight int
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Stats     catalog.Stats
	Total     int
	Completed int64
	Resolved  int64
	NoMatch   int64
	Failed    int64
	Batches   int
	Written   int
	Elapsed   time.Duration
}

// Snapshot is a point-in-time view of a run for the progress API.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Total     int64     `json:"total"`
	Completed int64     `json:"completed"`
	Pending   int       `json:"pending"`
	Written   int64     `json:"written"`
}

// Orchestrator runs the pipeline. Run may be called more than once but not
// concurrently.
type Orchestrator struct {
	resolver lookup.Resolver
	cfg      Config
	events   progress.Emitter
	clock    lookup.Clock
	logger   *zap.Logger

	mu    sync.RWMutex
	state *runState
}

type runState struct {
	started time.Time
	counter *worker.Counter
	queue   *memory.Queue
	writer  *writer.Writer
	running bool
}

// New constructs an Orchestrator.
func New(
	resolver lookup.Resolver,
	cfg Config,
	events progress.Emitter,
	clock lookup.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	cfg.Dispatch.RunID = cfg.RunID
	cfg.Writer.RunID = cfg.RunID
	return &Orchestrator{
		resolver: resolver,
		cfg:      cfg,
		events:   progress.OrNop(events),
		clock:    clock,
		logger:   logger,
	}
}

// Run resolves every pending row of sheet. Input errors are returned before
// any lookup starts. The writer is joined before Run returns, so the sheet
// holds every record that was flushed.
func (o *Orchestrator) Run(ctx context.Context, sheet lookup.Sheet) (Report, error) {
	start := o.clock.Now()
	report := Report{RunID: o.cfg.RunID.String()}

	backlog, stats, err := catalog.BuildBacklog(sheet, o.cfg.FromRow, o.cfg.Target, o.logger)
	if err != nil {
		return report, fmt.Errorf("build backlog: %w", err)
	}
	report.Stats = stats
	report.Total = len(backlog)

	o.logger.Info("backlog built",
		zap.Int("last_row", sheet.LastRowIndex()),
		zap.Int("from_row", max(o.cfg.FromRow, 1)),
		zap.Int("backlog", len(backlog)),
		zap.Int("already_resolved", stats.AlreadyResolved),
		zap.Int("wave_size", o.cfg.Dispatch.WaveSize),
		zap.Duration("wave_interval", o.cfg.Dispatch.WaveInterval),
		zap.Int("batch_size", o.cfg.Writer.BatchSize),
	)
	if len(backlog) == 0 {
		o.logger.Info("nothing to resolve")
		return report, nil
	}

	o.events.Emit(progress.Event{
		RunID:    o.cfg.RunID,
		TS:       start.UTC(),
		Stage:    progress.StageRunStart,
		Workbook: o.cfg.Workbook,
		Count:    int64(len(backlog)),
	})

	counter := worker.NewCounter(len(backlog))
	queue := memory.NewQueue()
	results := &tally{next: queue}
	pool := worker.NewPool(o.resolver, results, counter, o.events, o.clock, worker.Config{
		MaxInFlight: o.cfg.MaxInFlight,
		RunID:       o.cfg.RunID,
	}, o.logger)
	w := writer.New(sheet, queue, counter, o.cfg.Writer, o.events, o.clock, o.logger)
	d := dispatcher.New(pool, o.cfg.Dispatch, o.events, o.clock, o.logger)

	o.setState(&runState{started: start, counter: counter, queue: queue, writer: w, running: true})
	defer o.finish()

	// The writer stops on its own context, cancelled only once every started
	// lookup has been pushed, so its shutdown flush sees all of them.
	wctx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()

	var summary writer.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var werr error
		summary, werr = w.Run(wctx)
		return werr
	})
	g.Go(func() error {
		derr := d.Run(gctx, backlog)
		pool.Wait()
		if derr == nil {
			derr = gctx.Err()
		}
		if derr != nil {
			stopWriter()
		}
		return derr
	})
	err = g.Wait()

	report.Completed = counter.Load()
	report.Resolved = results.resolved.Load()
	report.NoMatch = results.noMatch.Load()
	report.Failed = results.failed.Load()
	report.Batches = summary.Batches
	report.Written = summary.Written
	report.Elapsed = o.clock.Now().Sub(start)

	if err != nil {
		o.events.Emit(progress.Event{
			RunID: o.cfg.RunID,
			TS:    o.clock.Now().UTC(),
			Stage: progress.StageRunError,
			Count: report.Completed,
			Dur:   report.Elapsed,
			Note:  err.Error(),
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warn("run interrupted", zap.Int64("completed", report.Completed), zap.Error(err))
		}
		return report, fmt.Errorf("run %s: %w", report.RunID, err)
	}

	o.events.Emit(progress.Event{
		RunID: o.cfg.RunID,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageRunDone,
		Count: report.Completed,
		Dur:   report.Elapsed,
	})
	return report, nil
}

// Snapshot reports the state of the current or most recent run.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := Snapshot{RunID: o.cfg.RunID.String()}
	if o.state == nil {
		return snap
	}
	snap.Running = o.state.running
	snap.StartedAt = o.state.started.UTC()
	snap.Total = o.state.counter.Total()
	snap.Completed = o.state.counter.Load()
	snap.Pending = o.state.queue.Len()
	snap.Written = o.state.writer.Written()
	return snap
}

func (o *Orchestrator) setState(st *runState) {
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	if o.state != nil {
		o.state.running = false
	}
	o.mu.Unlock()
}

// tally counts outcomes on their way into the pending queue.
type tally struct {
	next     worker.Results
	resolved atomic.Int64
	noMatch  atomic.Int64
	failed   atomic.Int64
}

func (t *tally) Push(rec lookup.ResultRecord) {
	switch rec.Outcome {
	case lookup.OutcomeResolved:
		t.resolved.Add(1)
	case lookup.OutcomeNoMatch:
		t.noMatch.Add(1)
	default:
		t.failed.Add(1)
	}
	t.next.Push(rec)
}
