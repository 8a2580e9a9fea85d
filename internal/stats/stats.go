// Package stats turns the shared counters and the supervisor's lifecycle into
// the snapshot served to dashboards.
package stats

import (
	"math"
	"time"

	"github.com/JakeFAU/bulkgen/internal/counters"
)

// Lifecycle is the part of the job supervisor the aggregator reads.
type Lifecycle interface {
	Running() bool
	StartedAt() (time.Time, bool)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Snapshot is the dashboard view of the current or most recent job.
type Snapshot struct {
	Generated int64   `json:"generated"`
	Target    int64   `json:"target"`
	Rare      int64   `json:"rare"`
	Couples   int64   `json:"couples"`
	Activated int64   `json:"activated"`
	Failed    int64   `json:"failed"`
	Speed     float64 `json:"speed"`
	IsRunning bool    `json:"is_running"`
	Elapsed   float64 `json:"elapsed"`
}

// Aggregator computes snapshots on demand. It holds no state of its own.
type Aggregator struct {
	counters  *counters.Registry
	lifecycle Lifecycle
	clock     Clock
}

// New wires an Aggregator.
func New(reg *counters.Registry, lifecycle Lifecycle, clock Clock) *Aggregator {
	return &Aggregator{counters: reg, lifecycle: lifecycle, clock: clock}
}

// Snapshot reads the counters and derives elapsed seconds and accounts per
// second. Elapsed is 1 when no job has ever started.
func (a *Aggregator) Snapshot() Snapshot {
	c := a.counters.Snapshot()
	out := Snapshot{
		Generated: c.Generated,
		Target:    c.Target,
		Rare:      c.Rare,
		Couples:   c.Couples,
		Activated: c.Activated,
		Failed:    c.Failed,
		IsRunning: a.lifecycle.Running(),
	}
	secs := 1.0
	if started, ok := a.lifecycle.StartedAt(); ok {
		secs = a.clock.Now().Sub(started).Seconds()
	}
	if secs > 0 {
		out.Speed = round2(float64(out.Generated) / secs)
	}
	// Only the reported value is rounded; speed uses the exact duration.
	out.Elapsed = round2(secs)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
