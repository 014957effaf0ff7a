package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reverse411/internal/progress"
	"github.com/JakeFAU/reverse411/internal/store"
)

func TestLedgerSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeLedgerRepo{}
	sink := NewLedgerSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now, Workbook: "book.xlsx", Count: 2},
		{RunID: runID, Stage: progress.StageRowDispatched, TS: now, Row: 4},
		{RunID: runID, Stage: progress.StageRowDone, TS: now, Row: 4, Outcome: "resolved", Phone: "555"},
		{RunID: runID, Stage: progress.StageRowDone, TS: now, Row: 9, Outcome: "no_match"},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(time.Second), Count: 2},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Len(t, repo.outcomeCalls, 1)
	require.Len(t, repo.outcomeCalls[0], 2)
	require.Equal(t, store.RowOutcome{
		RunID: runUUID, Row: 4, Outcome: "resolved", Phone: "555", RecordedAt: now,
	}, repo.outcomeCalls[0][0])
	require.Equal(t, []store.RunStatus{store.RunSuccess}, repo.statuses)
	require.Equal(t, []int64{2}, repo.completed)
}

func TestLedgerSinkRecordsErrorNote(t *testing.T) {
	t.Parallel()

	repo := &fakeLedgerRepo{}
	sink := NewLedgerSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunError, TS: time.Now(), Note: "flush failed"},
	}))
	require.Equal(t, []store.RunStatus{store.RunError}, repo.statuses)
	require.Equal(t, []string{"flush failed"}, repo.notes)
}

func TestLedgerSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeLedgerRepo{fail: true}
	sink := NewLedgerSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

func TestLedgerSinkNilRepo(t *testing.T) {
	t.Parallel()

	sink := NewLedgerSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageRunStart}}))
}

type fakeLedgerRepo struct {
	fail         bool
	starts       []uuid.UUID
	outcomeCalls [][]store.RowOutcome
	statuses     []store.RunStatus
	completed    []int64
	notes        []string
}

func (f *fakeLedgerRepo) StartRun(_ context.Context, runID uuid.UUID, _ string, _ int64, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeLedgerRepo) RecordOutcomes(_ context.Context, outcomes []store.RowOutcome) error {
	if f.fail {
		return assertErr("outcomes")
	}
	if len(outcomes) > 0 {
		f.outcomeCalls = append(f.outcomeCalls, outcomes)
	}
	return nil
}

func (f *fakeLedgerRepo) CompleteRun(
	_ context.Context,
	_ uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	completed int64,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.statuses = append(f.statuses, status)
	f.completed = append(f.completed, completed)
	if errMsg != nil {
		f.notes = append(f.notes, *errMsg)
	}
	return nil
}

func (f *fakeLedgerRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
