package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/catalog"
	"github.com/JakeFAU/reverse411/internal/dispatcher"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/progress"
	"github.com/JakeFAU/reverse411/internal/storage/memory"
	"github.com/JakeFAU/reverse411/internal/writer"
)

func TestRunWritesOneBatchThenFinalRemainder(t *testing.T) {
	t.Parallel()

	sheet := newSheet(25)
	res := newFakeResolver()
	events := &captureEmitter{}
	o := New(res, testConfig(10, 20), events, nil, zap.NewNop())

	report, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)

	require.Equal(t, 25, report.Total)
	require.Equal(t, int64(25), report.Completed)
	require.Equal(t, int64(25), report.Resolved)
	require.Equal(t, 2, report.Batches)
	require.Equal(t, 25, report.Written)
	require.Equal(t, 2, sheet.Flushes())

	saved := events.byStage(progress.StageBatchSaved)
	require.Len(t, saved, 2)
	require.Len(t, saved[0].Rows, 20)
	require.False(t, saved[0].Final)
	require.Len(t, saved[1].Rows, 5)
	require.True(t, saved[1].Final)

	seen := map[int]int{}
	for _, evt := range saved {
		for _, row := range evt.Rows {
			seen[row]++
		}
	}
	require.Len(t, seen, 25)
	for row, n := range seen {
		require.Equal(t, 1, n, "row %d saved more than once", row)
		require.Equal(t, phoneFor(row), sheet.Value(row, lookup.ColPhone))
	}

	require.Len(t, events.byStage(progress.StageRunStart), 1)
	done := events.byStage(progress.StageRunDone)
	require.Len(t, done, 1)
	require.Equal(t, int64(25), done[0].Count)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	sheet := newSheet(6)
	res := newFakeResolver()
	o := New(res, testConfig(4, 4), nil, nil, nil)

	_, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)
	flushes := sheet.Flushes()
	calls := res.totalCalls()
	require.Equal(t, 6, calls)

	report, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)
	require.Zero(t, report.Total)
	require.Equal(t, 6, report.Stats.AlreadyResolved)
	require.Equal(t, flushes, sheet.Flushes())
	require.Equal(t, calls, res.totalCalls())
}

func TestRunTimeoutCountedAndNotRetried(t *testing.T) {
	t.Parallel()

	sheet := newSheet(5)
	res := newFakeResolver()
	res.fail[3] = fmt.Errorf("fetch: %w", context.DeadlineExceeded)
	o := New(res, testConfig(10, 10), nil, nil, nil)

	report, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)
	require.Equal(t, int64(5), report.Completed)
	require.Equal(t, int64(4), report.Resolved)
	require.Equal(t, int64(1), report.Failed)
	require.Equal(t, 1, res.callsFor(3))
	require.Empty(t, sheet.Value(3, lookup.ColPhone))
	require.Equal(t, phoneFor(2), sheet.Value(2, lookup.ColPhone))
}

func TestRunLeavesPrefilledRowUntouched(t *testing.T) {
	t.Parallel()

	sheet := newSheet(4)
	row, ok := sheet.Row(2)
	require.True(t, ok)
	row.SetCell(lookup.ColFirstName, "Kept")
	row.SetCell(lookup.ColPhone, "(613) 555-0000")

	res := newFakeResolver()
	o := New(res, testConfig(10, 10), nil, nil, nil)
	report, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Zero(t, res.callsFor(2))
	require.Equal(t, "(613) 555-0000", sheet.Value(2, lookup.ColPhone))
	require.Equal(t, "Kept", sheet.Value(2, lookup.ColFirstName))
}

func TestRunStartRowBeyondLastRowFailsBeforeFetching(t *testing.T) {
	t.Parallel()

	sheet := newSheet(3)
	res := newFakeResolver()
	cfg := testConfig(10, 10)
	cfg.FromRow = 9
	o := New(res, cfg, nil, nil, nil)

	_, err := o.Run(context.Background(), sheet)
	require.ErrorIs(t, err, catalog.ErrStartRowOutOfRange)
	require.Zero(t, res.totalCalls())
	require.Zero(t, sheet.Flushes())
}

func TestRunEmptyBacklogSkipsWriter(t *testing.T) {
	t.Parallel()

	sheet := memory.NewSheet([][]string{{"header"}, {""}})
	events := &captureEmitter{}
	o := New(newFakeResolver(), testConfig(10, 10), events, nil, nil)

	report, err := o.Run(context.Background(), sheet)
	require.NoError(t, err)
	require.Zero(t, report.Total)
	require.Zero(t, sheet.Flushes())
	require.Empty(t, events.byStage(progress.StageRunStart))
}

func TestRunFlushFailureAborts(t *testing.T) {
	t.Parallel()

	sheet := newSheet(3)
	flushErr := errors.New("disk full")
	sheet.FailFlush(flushErr)
	events := &captureEmitter{}
	o := New(newFakeResolver(), testConfig(10, 10), events, nil, nil)

	_, err := o.Run(context.Background(), sheet)
	require.ErrorIs(t, err, flushErr)
	require.Len(t, events.byStage(progress.StageRunError), 1)
}

func TestRunCancellationJoinsWriter(t *testing.T) {
	t.Parallel()

	sheet := newSheet(30)
	res := newFakeResolver()
	res.block = true
	cfg := testConfig(10, 100)
	cfg.Dispatch.WaveInterval = time.Hour
	o := New(res, cfg, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for res.totalCalls() < 10 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	report, err := o.Run(ctx, sheet)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(10), report.Completed)
	require.Equal(t, int64(10), report.Failed)
	// Pending records are flushed once on the way out.
	require.Equal(t, 1, sheet.Flushes())
	require.False(t, o.Snapshot().Running)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	o := New(newFakeResolver(), testConfig(10, 10), nil, nil, nil)
	snap := o.Snapshot()
	require.False(t, snap.Running)
	require.Zero(t, snap.Total)

	_, err := o.Run(context.Background(), newSheet(4))
	require.NoError(t, err)
	snap = o.Snapshot()
	require.Equal(t, int64(4), snap.Total)
	require.Equal(t, int64(4), snap.Completed)
	require.Equal(t, int64(4), snap.Written)
	require.Zero(t, snap.Pending)
}

func testConfig(wave, batch int) Config {
	return Config{
		RunID:    uuid.New(),
		Workbook: "test.xlsx",
		FromRow:  1,
		Target:   catalog.Target{BaseURL: "http://lookup.test", Mode: "reverse"},
		Dispatch: dispatcher.Config{
			WaveSize:      wave,
			WaveInterval:  100 * time.Millisecond,
			SubmitSpacing: time.Millisecond,
		},
		Writer: writer.Config{
			BatchSize: batch,
			IdleWait:  5 * time.Millisecond,
		},
		MaxInFlight: 50,
	}
}

func newSheet(n int) *memory.Sheet {
	rows := [][]string{{"number", "", "street", "type", "", "", "", "city"}}
	for i := 1; i <= n; i++ {
		row := make([]string, 8)
		row[lookup.ColStreetNumber] = fmt.Sprint(i)
		row[lookup.ColStreetName] = "Main"
		row[lookup.ColStreetType] = "St"
		row[lookup.ColCity] = "Ottawa"
		rows = append(rows, row)
	}
	return memory.NewSheet(rows)
}

func phoneFor(row int) string {
	return fmt.Sprintf("(613) 555-%04d", row)
}

type fakeResolver struct {
	mu    sync.Mutex
	calls map[int]int
	fail  map[int]error
	block bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{calls: map[int]int{}, fail: map[int]error{}}
}

func (f *fakeResolver) Resolve(ctx context.Context, item lookup.WorkItem) lookup.ResultRecord {
	f.mu.Lock()
	f.calls[item.Row]++
	err := f.fail[item.Row]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return lookup.FetchFailed(item.Row, ctx.Err())
	}
	if err != nil {
		return lookup.FetchFailed(item.Row, err)
	}
	return lookup.Resolved(item.Row, "Jane", "Doe", phoneFor(item.Row))
}

func (f *fakeResolver) callsFor(row int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[row]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []progress.Event
	for _, evt := range c.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}
