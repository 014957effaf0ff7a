package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("ledger record not found")

// RunStatus mirrors the run_ledger status column.
type RunStatus string

// Run statuses persisted in run_ledger.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one row of run_ledger.
type Run struct {
	ID       uuid.UUID
	Workbook string
	// StartedAt captures when the run began dispatching.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     RunStatus
	// Total is the backlog size at start.
	Total int64
	// Completed is the number of rows that finished by the end of the run.
	Completed    int64
	ErrorMessage *string
}

// RowOutcome models one row of row_outcomes.
type RowOutcome struct {
	RunID      uuid.UUID
	Row        int
	Outcome    string
	Phone      string
	RecordedAt time.Time
}

// LedgerRepository records runs and their per-row outcomes.
type LedgerRepository interface {
	// StartRun inserts the run header, or is a no-op when it already exists.
	StartRun(ctx context.Context, runID uuid.UUID, workbook string, total int64, startedAt time.Time) error
	// RecordOutcomes upserts per-row outcomes for a run.
	RecordOutcomes(ctx context.Context, outcomes []RowOutcome) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		completed int64,
		errMsg *string,
	) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
}
