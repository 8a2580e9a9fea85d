// Package counters holds the process-wide progress counters shared by the job
// supervisor, the workers and the stats aggregator.
package counters

import (
	"fmt"
	"sync/atomic"
)

// Kind names one of the outcome counters.
type Kind int

// Supported counter kinds.
const (
	Generated Kind = iota
	Rare
	Couples
	Activated
	Failed
	numKinds
)

// String returns the JSON-facing name of the counter.
func (k Kind) String() string {
	switch k {
	case Generated:
		return "generated"
	case Rare:
		return "rare"
	case Couples:
		return "couples"
	case Activated:
		return "activated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Snapshot is a point-in-time copy of every counter. Individual fields are
// read atomically but the snapshot as a whole is not a consistent cut.
type Snapshot struct {
	Generated int64 `json:"generated"`
	Target    int64 `json:"target"`
	Rare      int64 `json:"rare"`
	Couples   int64 `json:"couples"`
	Activated int64 `json:"activated"`
	Failed    int64 `json:"failed"`
}

// Registry is a set of atomic counters plus the job target. The zero value is
// ready to use.
type Registry struct {
	values [numKinds]atomic.Int64
	target atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Increment adds one to the counter and returns the new value.
func (r *Registry) Increment(kind Kind) int64 {
	return r.Add(kind, 1)
}

// Add adds delta to the counter and returns the new value. Negative deltas
// are ignored so counters stay monotonic between resets.
func (r *Registry) Add(kind Kind, delta int64) int64 {
	if kind < 0 || kind >= numKinds {
		return 0
	}
	if delta <= 0 {
		return r.values[kind].Load()
	}
	return r.values[kind].Add(delta)
}

// Get returns the current value of one counter.
func (r *Registry) Get(kind Kind) int64 {
	if kind < 0 || kind >= numKinds {
		return 0
	}
	return r.values[kind].Load()
}

// Target returns the configured quota.
func (r *Registry) Target() int64 {
	return r.target.Load()
}

// Reached reports whether the generated counter has met the target. A zero
// target is never reached.
func (r *Registry) Reached() bool {
	target := r.target.Load()
	return target > 0 && r.values[Generated].Load() >= target
}

// Reset zeroes every counter and sets a new target. Only the supervisor calls
// this, at job start.
func (r *Registry) Reset(target int64) {
	for i := range r.values {
		r.values[i].Store(0)
	}
	r.target.Store(target)
}

// Snapshot copies the current counter values.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Generated: r.values[Generated].Load(),
		Target:    r.target.Load(),
		Rare:      r.values[Rare].Load(),
		Couples:   r.values[Couples].Load(),
		Activated: r.values[Activated].Load(),
		Failed:    r.values[Failed].Load(),
	}
}
