package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bulkgen/internal/progress"
)

// TestPrometheusSinkRecordsMetrics checks run and account collectors move together.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageJobStart, Target: 2, Threads: 1, Region: "IND"},
		{RunID: runID, TS: now, Stage: progress.StageJobStart, Target: 2, Threads: 1, Region: "IND"},
		{
			RunID:    runID,
			TS:       now.Add(time.Second),
			Stage:    progress.StageAccount,
			Worker:   1,
			Region:   "IND",
			Outcomes: []progress.Outcome{progress.OutcomeGenerated, progress.OutcomeRare},
			Dur:      20 * time.Millisecond,
		},
		{RunID: runID, TS: now.Add(2 * time.Second), Stage: progress.StageWorkerExit, Worker: 1},
		{RunID: runID, TS: now.Add(3 * time.Second), Stage: progress.StageJobDone, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.jobsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("completed")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.jobsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.accounts.WithLabelValues("rare", "IND")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.accounts.WithLabelValues("generated", "IND")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.workerExits), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.attemptDuration, "bulkgen_attempt_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "bulkgen_job_runtime_seconds"))
}

// TestPrometheusSinkStoppedRun labels stopped runs separately.
func TestPrometheusSinkStoppedRun(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageJobStart, Target: 1, Threads: 1},
	}))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.jobsRunning), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageJobStopped},
		{RunID: runID, TS: time.Now(), Stage: progress.StageJobStopped},
	}))
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.jobsRunning), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("stopped")), 1e-9)
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
