package progress

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Stage identifies the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageJobStart   Stage = "JOB_START"
	StageJobDone    Stage = "JOB_DONE"
	StageJobStopped Stage = "JOB_STOPPED"
	StageJobError   Stage = "JOB_ERROR"
	StageAccount    Stage = "ACCOUNT"
	StageWorkerExit Stage = "WORKER_EXIT"
)

// Outcome labels what happened to a single synthesized account.
type Outcome string

// Account outcomes. One ACCOUNT event can carry several.
const (
	OutcomeGenerated Outcome = "generated"
	OutcomeRare      Outcome = "rare"
	OutcomeCouple    Outcome = "couple"
	OutcomeActivated Outcome = "activated"
	OutcomeFailed    Outcome = "failed"
)

// Event is one progress record.
type Event struct {
	// RunID is the 16-byte form of the run's UUID.
	RunID [16]byte
	// TS is the UTC time the emitter observed the milestone.
	TS    time.Time
	Stage Stage
	// Worker is the 1-based worker id for ACCOUNT and WORKER_EXIT events.
	Worker int
	Region string
	Ghost  bool
	// Target and Threads are set on JOB_START.
	Target  int64
	Threads int
	// Outcomes lists account outcomes for ACCOUNT events.
	Outcomes  []Outcome
	AccountID string
	// Dur is the attempt latency for ACCOUNT events and the run wall time for
	// terminal job events.
	Dur  time.Duration
	Note string
}

// Validate rejects malformed events before they are queued.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart:
		if e.Target <= 0 || e.Threads <= 0 {
			return errors.New("job start requires target and threads")
		}
	case StageJobDone, StageJobStopped, StageJobError:
	case StageAccount:
		if e.Worker <= 0 {
			return errors.New("account event requires worker id")
		}
		if len(e.Outcomes) == 0 {
			return errors.New("account event requires at least one outcome")
		}
	case StageWorkerExit:
		if e.Worker <= 0 {
			return errors.New("worker exit requires worker id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Has reports whether an ACCOUNT event carries the outcome.
func (e Event) Has(o Outcome) bool {
	return slices.Contains(e.Outcomes, o)
}

// RunUUID converts RunID back to a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
