// Package metrics exposes process-wide Prometheus collectors for the HTTP
// surface, worker pool, and log bridge.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	workerErrorsTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Repeated calls are
// no-ops.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served, by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency, by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bulkgen_active_workers",
			Help: "Workers currently looping on attempts.",
		})
		workerErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkgen_worker_errors_total",
				Help: "Worker attempt failures, by kind.",
			},
			[]string{"kind"},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulkgen_rate_limit_delay_seconds",
				Help:    "Time workers spent waiting on the region limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"region"},
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncActiveWorkers marks a worker as started.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers marks a worker as exited.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// Worker error kinds.
const (
	WorkerErrorTransient     = "transient"
	WorkerErrorUnrecoverable = "unrecoverable"
	WorkerErrorPanic         = "panic"
)

// ObserveWorkerError counts one failed attempt.
func ObserveWorkerError(kind string) {
	Init()
	workerErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimitDelay records a limiter wait. Its signature matches
// ratelimit.DelayObserver.
func ObserveRateLimitDelay(region string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(region).Observe(d.Seconds())
}

// BridgeStats is the read side of the log bridge.
type BridgeStats interface {
	Len() int
	Dropped() int64
}

// RegisterBridge exports the bridge backlog and drop count on reg. Registering
// the same metric names twice is tolerated.
func RegisterBridge(reg prometheus.Registerer, stats BridgeStats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bulkgen_log_events_buffered",
			Help: "Log events waiting to be drained.",
		}, func() float64 { return float64(stats.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "bulkgen_log_events_dropped_total",
			Help: "Log events discarded because the buffer was full.",
		}, func() float64 { return float64(stats.Dropped()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("register bridge collector: %w", err)
		}
	}
	return nil
}
