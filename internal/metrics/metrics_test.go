package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, activeWorkers)
}

func TestWorkerCollectors(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.InDelta(t, before+1, testutil.ToFloat64(activeWorkers), 1e-9)
	DecActiveWorkers()

	ObserveWorkerError(WorkerErrorPanic)
	require.InDelta(t, 1.0, testutil.ToFloat64(workerErrorsTotal.WithLabelValues(WorkerErrorPanic)), 1e-9)

	ObserveRateLimitDelay("IND", 20*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(rateLimitDelaySeconds, "bulkgen_rate_limit_delay_seconds"))
}

type fakeBridge struct {
	n       int
	dropped int64
}

func (f fakeBridge) Len() int       { return f.n }
func (f fakeBridge) Dropped() int64 { return f.dropped }

func TestRegisterBridge(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterBridge(reg, fakeBridge{n: 3, dropped: 7}))
	require.NoError(t, RegisterBridge(reg, fakeBridge{}))

	count, err := testutil.GatherAndCount(reg, "bulkgen_log_events_buffered", "bulkgen_log_events_dropped_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
