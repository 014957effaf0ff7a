// Package worker runs lookups concurrently and hands their results to the
// writer.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/reverse411/internal/clock/system"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/metrics"
	"github.com/JakeFAU/reverse411/internal/progress"
)

// DefaultMaxInFlight caps concurrent lookups when Config leaves it unset.
const DefaultMaxInFlight = 200

// Results receives completed records.
type Results interface {
	Push(rec lookup.ResultRecord)
}

// Config controls pool behavior.
type Config struct {
	MaxInFlight int
	RunID       [16]byte
}

// Pool executes lookups asynchronously. Every submitted item produces exactly
// one record on Results followed by exactly one Counter increment.
type Pool struct {
	resolver lookup.Resolver
	results  Results
	counter  *Counter
	events   progress.Emitter
	clock    lookup.Clock
	logger   *zap.Logger
	runID    [16]byte

	group    *errgroup.Group
	released chan struct{}
}

// NewPool constructs a Pool.
func NewPool(
	resolver lookup.Resolver,
	results Results,
	counter *Counter,
	events progress.Emitter,
	clock lookup.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	g := new(errgroup.Group)
	g.SetLimit(cfg.MaxInFlight)
	return &Pool{
		resolver: resolver,
		results:  results,
		counter:  counter,
		events:   progress.OrNop(events),
		clock:    clock,
		logger:   logger,
		runID:    cfg.RunID,
		group:    g,
		released: make(chan struct{}, 1),
	}
}

// Submit starts a lookup for item. It blocks while the pool is saturated and
// returns ctx.Err() if the context ends first; the item is then not started.
func (p *Pool) Submit(ctx context.Context, item lookup.WorkItem) error {
	task := func() error {
		defer p.release()
		p.process(ctx, item)
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("submit row %d: %w", item.Row, err)
		}
		if p.group.TryGo(task) {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-p.released:
		}
	}
}

// Wait blocks until every started lookup has been recorded.
func (p *Pool) Wait() {
	_ = p.group.Wait()
}

func (p *Pool) release() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}

func (p *Pool) process(ctx context.Context, item lookup.WorkItem) {
	metrics.IncInFlight()
	defer metrics.DecInFlight()

	rec := p.resolve(ctx, item)
	rec.Row = item.Row

	// Push before counting so the writer never sees a full count with
	// records still outside the queue.
	p.results.Push(rec)
	p.counter.Inc()

	p.events.Emit(progress.Event{
		RunID:   p.runID,
		TS:      p.clock.Now().UTC(),
		Stage:   progress.StageRowDone,
		Row:     item.Row,
		Outcome: string(rec.Outcome),
		Phone:   rec.Phone,
		Dur:     rec.Duration,
	})
}

func (p *Pool) resolve(ctx context.Context, item lookup.WorkItem) (rec lookup.ResultRecord) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("resolver panicked", zap.Int("row", item.Row), zap.Any("panic", r))
			rec = lookup.FetchFailed(item.Row, fmt.Errorf("resolver panic: %v", r))
		}
	}()
	return p.resolver.Resolve(ctx, item)
}
