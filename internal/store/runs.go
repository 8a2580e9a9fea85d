package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the job_runs.status column.
type RunStatus string

// Run statuses persisted in job_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
	RunError     RunStatus = "error"
)

// ParseRunStatus validates a status filter.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case RunRunning, RunCompleted, RunStopped, RunError:
		return st, true
	default:
		return "", false
	}
}

// Run models one row of job_runs.
type Run struct {
	ID           uuid.UUID
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	Region       string
	Ghost        bool
	Target       int64
	Threads      int
	Totals       Outcomes
	ErrorMessage *string
}

// Outcomes holds per-run counter totals or deltas.
type Outcomes struct {
	Generated int64
	Rare      int64
	Couples   int64
	Activated int64
	Failed    int64
}

// IsZero reports whether every field is zero.
func (o Outcomes) IsZero() bool {
	return o == Outcomes{}
}

// Add sums two outcome sets.
func (o Outcomes) Add(other Outcomes) Outcomes {
	return Outcomes{
		Generated: o.Generated + other.Generated,
		Rare:      o.Rare + other.Rare,
		Couples:   o.Couples + other.Couples,
		Activated: o.Activated + other.Activated,
		Failed:    o.Failed + other.Failed,
	}
}

// RunRepository persists run lifecycle and outcome totals.
type RunRepository interface {
	// UpsertRunStart inserts the run row, or refreshes it if it already exists.
	UpsertRunStart(ctx context.Context, run Run) error
	// CompleteRun marks the run finished with the given status and error.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// AddOutcomes applies counter deltas to the run totals.
	AddOutcomes(ctx context.Context, id uuid.UUID, delta Outcomes) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
