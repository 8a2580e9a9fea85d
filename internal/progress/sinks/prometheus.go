package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/bulkgen/internal/progress"
)

// PrometheusSink exports run and account metrics.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	accounts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	workerExits     prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkgen_jobs_started_total",
			Help: "Generation jobs started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkgen_jobs_completed_total",
			Help: "Generation jobs finished, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkgen_jobs_running",
			Help: "Generation jobs currently running.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkgen_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		accounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkgen_accounts_total",
			Help: "Account outcomes, by outcome and region.",
		}, []string{"outcome", "region"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bulkgen_attempt_duration_seconds",
			Help:    "Latency of a single synthesis attempt.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		workerExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkgen_worker_exits_total",
			Help: "Workers that have exited.",
		}),
		tracker: newRunTracker(),
	}
	for _, c := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.accounts,
		s.attemptDuration,
		s.workerExits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "completed")
		case progress.StageJobStopped:
			s.finish(evt, "stopped")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageAccount:
			region := evt.Region
			if region == "" {
				region = "unknown"
			}
			for _, o := range evt.Outcomes {
				s.accounts.WithLabelValues(string(o), region).Inc()
			}
			if evt.Dur > 0 {
				s.attemptDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageWorkerExit:
			s.workerExits.Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.jobsRunning.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker dedupes start/finish pairs so the running gauge never drifts.
type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
