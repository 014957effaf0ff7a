package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/reverse411/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns the run and row
// collectors; process-level gauges live in internal/metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	rowsDispatched prometheus.Counter
	rowsDone       *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	batchesSaved   *prometheus.CounterVec
	rowsSaved      prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reverse411_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reverse411_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reverse411_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reverse411_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"result"}),
		rowsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reverse411_rows_dispatched_total",
			Help: "Rows submitted to the worker pool.",
		}),
		rowsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reverse411_rows_done_total",
			Help: "Rows completed partitioned by outcome.",
		}, []string{"outcome"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reverse411_lookup_duration_seconds",
			Help:    "Lookup duration partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"outcome"}),
		batchesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reverse411_batches_saved_total",
			Help: "Workbook flushes partitioned by kind (batch or final).",
		}, []string{"kind"}),
		rowsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reverse411_rows_saved_total",
			Help: "Rows persisted to the workbook.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.rowsDispatched,
		s.rowsDone,
		s.lookupDuration,
		s.batchesSaved,
		s.rowsSaved,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageRowDispatched:
		s.rowsDispatched.Inc()
	case progress.StageRowDone:
		s.rowsDone.WithLabelValues(evt.Outcome).Inc()
		if evt.Dur > 0 {
			s.lookupDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
		}
	case progress.StageBatchSaved:
		kind := "batch"
		if evt.Final {
			kind = "final"
		}
		s.batchesSaved.WithLabelValues(kind).Inc()
		s.rowsSaved.Add(float64(len(evt.Rows)))
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
		return
	case progress.StageRunDone:
		s.observeCompletion(evt, "success")
	case progress.StageRunError:
		s.observeCompletion(evt, "error")
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeCompletion(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
