package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reverse411/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Count: 3},
		{RunID: runID, TS: now, Stage: progress.StageRowDispatched, Row: 1},
		{RunID: runID, TS: now, Stage: progress.StageRowDispatched, Row: 2},
		{RunID: runID, TS: now, Stage: progress.StageRowDone, Row: 1, Outcome: "resolved", Dur: 200 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageRowDone, Row: 2, Outcome: "fetch_failed", Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageBatchSaved, Rows: []int{1, 2}, Final: true},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.rowsDispatched))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.rowsDone.WithLabelValues("resolved")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.rowsDone.WithLabelValues("fetch_failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.batchesSaved.WithLabelValues("final")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.rowsSaved))
	require.Equal(t, 2, testutil.CollectAndCount(sink.lookupDuration, "reverse411_lookup_duration_seconds"))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Note: "boom"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
