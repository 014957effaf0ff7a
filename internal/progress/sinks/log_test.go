package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/reverse411/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRowDispatched, Row: 1},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRowDone, Row: 1, Outcome: "resolved"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchSaved, Rows: []int{1}},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunDone, Count: 1},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, string(progress.StageBatchSaved), entries[0].ContextMap()["stage"])
	require.Equal(t, string(progress.StageRunDone), entries[1].ContextMap()["stage"])
}
