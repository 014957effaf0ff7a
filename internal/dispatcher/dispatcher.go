// Package dispatcher feeds the backlog to the worker pool in paced waves.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/reverse411/internal/clock/system"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/metrics"
	"github.com/JakeFAU/reverse411/internal/progress"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultWaveSize      = 10
	DefaultWaveInterval  = 10 * time.Second
	DefaultSubmitSpacing = 20 * time.Millisecond
)

// Submitter starts asynchronous work for one item.
type Submitter interface {
	Submit(ctx context.Context, item lookup.WorkItem) error
}

// Config controls wave pacing.
type Config struct {
	WaveSize      int
	WaveInterval  time.Duration
	SubmitSpacing time.Duration
	RunID         [16]byte
}

// Dispatcher submits work in waves without waiting for completions.
type Dispatcher struct {
	pool    Submitter
	cfg     Config
	limiter *rate.Limiter
	events  progress.Emitter
	clock   lookup.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(pool Submitter, cfg Config, events progress.Emitter, clock lookup.Clock, logger *zap.Logger) *Dispatcher {
	if cfg.WaveSize <= 0 {
		cfg.WaveSize = DefaultWaveSize
	}
	if cfg.WaveInterval < 0 {
		cfg.WaveInterval = 0
	}
	limit := rate.Inf
	if cfg.SubmitSpacing > 0 {
		limit = rate.Every(cfg.SubmitSpacing)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Dispatcher{
		pool:    pool,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		events:  progress.OrNop(events),
		clock:   clock,
		logger:  logger,
	}
}

// Run submits every backlog item and returns once the last one is handed to
// the pool. In-flight work is not awaited.
func (d *Dispatcher) Run(ctx context.Context, backlog []lookup.WorkItem) error {
	waves := (len(backlog) + d.cfg.WaveSize - 1) / d.cfg.WaveSize
	for wave := 0; wave < waves; wave++ {
		start := wave * d.cfg.WaveSize
		end := min(start+d.cfg.WaveSize, len(backlog))

		d.logger.Info("dispatching wave",
			zap.Int("wave", wave+1),
			zap.Int("waves", waves),
			zap.Int("rows", end-start),
		)
		for _, item := range backlog[start:end] {
			if err := d.submit(ctx, item); err != nil {
				return err
			}
		}

		if wave < waves-1 && d.cfg.WaveInterval > 0 {
			if err := d.sleep(ctx, d.cfg.WaveInterval); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) submit(ctx context.Context, item lookup.WorkItem) error {
	waitStart := time.Now()
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatch spacing: %w", err)
	}
	if waited := time.Since(waitStart); waited > 0 {
		metrics.ObserveDispatchWait(waited)
	}
	if err := d.pool.Submit(ctx, item); err != nil {
		return fmt.Errorf("dispatch row %d: %w", item.Row, err)
	}
	d.logger.Info("row dispatched", zap.Int("row", item.Row), zap.String("target", item.Target))
	d.events.Emit(progress.Event{
		RunID: d.cfg.RunID,
		TS:    d.clock.Now().UTC(),
		Stage: progress.StageRowDispatched,
		Row:   item.Row,
	})
	return nil
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	start := time.Now()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dispatch wave interval: %w", ctx.Err())
	case <-timer.C:
		metrics.ObserveDispatchWait(time.Since(start))
		return nil
	}
}
