package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRowDispatched Stage = "ROW_DISPATCHED"
	StageRowDone       Stage = "ROW_DONE"
	StageBatchSaved    Stage = "BATCH_SAVED"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Event captures a single milestone of a lookup run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Workbook is set on RUN_START.
	Workbook string
	// Row is the sheet index for row-scoped stages.
	Row int
	// Outcome is the lookup outcome for ROW_DONE.
	Outcome string
	// Phone is the resolved number for ROW_DONE, if any.
	Phone string
	// Rows lists the sheet indexes persisted by a BATCH_SAVED.
	Rows []int
	// Count is the backlog size on RUN_START and the completed total on RUN_DONE.
	Count int64
	// Final marks the terminal BATCH_SAVED of a run.
	Final bool
	// Dur captures fetch latency on ROW_DONE and wall time on RUN_DONE/RUN_ERROR.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageRowDispatched:
		if e.Row < 0 {
			return errors.New("row dispatched requires row")
		}
	case StageRowDone:
		if e.Row < 0 {
			return errors.New("row done requires row")
		}
		if e.Outcome == "" {
			return errors.New("row done requires outcome")
		}
	case StageBatchSaved:
		if len(e.Rows) == 0 {
			return errors.New("batch saved requires rows")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID converts a textual run id into the Event form.
func ParseRunID(raw string) ([16]byte, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
