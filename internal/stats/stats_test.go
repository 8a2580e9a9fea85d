package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bulkgen/internal/counters"
)

type fakeLifecycle struct {
	running bool
	started time.Time
	ok      bool
}

func (f fakeLifecycle) Running() bool                { return f.running }
func (f fakeLifecycle) StartedAt() (time.Time, bool) { return f.started, f.ok }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestSnapshotBeforeAnyJob(t *testing.T) {
	t.Parallel()

	agg := New(counters.New(), fakeLifecycle{}, fixedClock(time.Now()))
	snap := agg.Snapshot()
	require.Equal(t, 1.0, snap.Elapsed)
	require.Zero(t, snap.Speed)
	require.False(t, snap.IsRunning)
}

func TestSnapshotDerivesSpeed(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	reg := counters.New()
	reg.Reset(100)
	reg.Add(counters.Generated, 10)
	reg.Add(counters.Rare, 2)
	reg.Increment(counters.Failed)

	agg := New(reg, fakeLifecycle{running: true, started: start, ok: true},
		fixedClock(start.Add(3*time.Second+456*time.Millisecond)))
	snap := agg.Snapshot()
	require.Equal(t, 3.46, snap.Elapsed)
	require.Equal(t, 2.89, snap.Speed)
	require.Equal(t, int64(100), snap.Target)
	require.Equal(t, int64(2), snap.Rare)
	require.Equal(t, int64(1), snap.Failed)
	require.True(t, snap.IsRunning)
}

func TestSnapshotSpeedUsesExactElapsed(t *testing.T) {
	t.Parallel()

	start := time.Now()
	reg := counters.New()
	reg.Increment(counters.Generated)
	agg := New(reg, fakeLifecycle{running: true, started: start, ok: true},
		fixedClock(start.Add(4*time.Millisecond)))
	snap := agg.Snapshot()
	require.Zero(t, snap.Elapsed)
	require.InDelta(t, 250.0, snap.Speed, 1e-9)

	reg.Add(counters.Generated, 9)
	agg = New(reg, fakeLifecycle{running: true, started: start, ok: true},
		fixedClock(start.Add(3*time.Second+4*time.Millisecond)))
	snap = agg.Snapshot()
	require.Equal(t, 3.0, snap.Elapsed)
	require.Equal(t, 3.33, snap.Speed)
}

func TestSnapshotZeroElapsed(t *testing.T) {
	t.Parallel()

	start := time.Now()
	reg := counters.New()
	reg.Add(counters.Generated, 5)
	agg := New(reg, fakeLifecycle{started: start, ok: true}, fixedClock(start))
	snap := agg.Snapshot()
	require.Zero(t, snap.Elapsed)
	require.Zero(t, snap.Speed)
}

func TestSnapshotJSONShape(t *testing.T) {
	t.Parallel()

	agg := New(counters.New(), fakeLifecycle{}, fixedClock(time.Now()))
	raw, err := json.Marshal(agg.Snapshot())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"generated", "target", "rare", "couples", "activated", "failed", "speed", "is_running", "elapsed"} {
		require.Contains(t, fields, key)
	}
	require.Len(t, fields, 9)
}
