// Package job owns the generation lifecycle: it validates start requests,
// spawns the worker pool, watches the shared quota, and returns to Idle when
// the quota is met, every worker has exited, or Stop is called.
package job

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/counters"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
	"github.com/JakeFAU/bulkgen/internal/progress"
	"github.com/JakeFAU/bulkgen/internal/worker"
)

// DefaultPollInterval is how often the monitor re-checks the quota.
const DefaultPollInterval = time.Second

const tracerName = "github.com/JakeFAU/bulkgen/internal/job"

// State is the lifecycle state.
type State int

// Lifecycle states.
const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator allocates run and account identifiers.
type IDGenerator interface {
	NewID() (string, error)
	NewRawID() (uuid.UUID, error)
}

// Options wires a Supervisor. Counters, Events, Synth, Clock and IDs are
// required.
type Options struct {
	Counters    *counters.Registry
	Events      worker.EventSink
	Synth       worker.Synthesizer
	Accounts    accounts.Sink
	Progress    progress.Emitter
	Pacer       worker.Pacer
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger
	Tracer      trace.Tracer
	BaseContext context.Context

	PollInterval time.Duration
	GhostRegion  string
	MaxFailures  int
}

// run is the bookkeeping for one started job.
type run struct {
	id        uuid.UUID
	cfg       Config
	startedAt time.Time
	cancel    context.CancelFunc
	span      trace.Span
	workers   chan struct{}
	done      chan struct{}
}

// Supervisor runs at most one job at a time. All methods are safe for
// concurrent use.
type Supervisor struct {
	opts Options
	log  *zap.Logger

	// generated reads the quota counter for the monitor.
	generated func() int64

	mu      sync.Mutex
	state   State
	current *run
}

// NewSupervisor validates opts and returns an idle Supervisor.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Counters == nil || opts.Events == nil || opts.Synth == nil {
		return nil, errors.New("job: counters, events and synthesizer are required")
	}
	if opts.Clock == nil || opts.IDs == nil {
		return nil, errors.New("job: clock and id generator are required")
	}
	if opts.Progress == nil {
		opts.Progress = progress.NopEmitter{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GhostRegion == "" {
		opts.GhostRegion = DefaultGhostRegion
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	reg := opts.Counters
	return &Supervisor{
		opts:      opts,
		log:       opts.Logger,
		generated: func() int64 { return reg.Get(counters.Generated) },
	}, nil
}

// Start launches a job. It returns ErrAlreadyRunning, without touching the
// counters, if a job is active, and a *ConfigError for invalid parameters.
// The returned id identifies the run.
func (s *Supervisor) Start(cfg Config) (uuid.UUID, error) {
	cfg = cfg.Normalize(s.opts.GhostRegion)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return uuid.Nil, ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, err
	}
	id, err := s.opts.IDs.NewRawID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("job: allocate run id: %w", err)
	}

	ctx, span := s.opts.Tracer.Start(s.opts.BaseContext, "job.run", trace.WithAttributes(
		attribute.String("run_id", id.String()),
		attribute.String("region", cfg.Region),
		attribute.Bool("ghost", cfg.Ghost),
		attribute.Int64("target", cfg.AccountCount),
		attribute.Int("threads", cfg.ThreadCount),
	))
	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        id,
		cfg:       cfg,
		startedAt: s.opts.Clock.Now(),
		cancel:    cancel,
		span:      span,
		workers:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	pool, err := s.buildWorkers(r)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.End()
		return uuid.Nil, err
	}

	s.opts.Counters.Reset(cfg.AccountCount)
	s.state = Running
	s.current = r

	s.banner(cfg)
	s.opts.Progress.Emit(progress.Event{
		RunID:   progress.UUIDToBytes(id),
		TS:      r.startedAt,
		Stage:   progress.StageJobStart,
		Region:  cfg.Region,
		Ghost:   cfg.Ghost,
		Target:  cfg.AccountCount,
		Threads: cfg.ThreadCount,
	})
	s.log.Info("job started",
		zap.Stringer("run_id", id),
		zap.String("region", cfg.Region),
		zap.Bool("ghost", cfg.Ghost),
		zap.Int64("target", cfg.AccountCount),
		zap.Int("threads", cfg.ThreadCount),
	)

	var wg sync.WaitGroup
	for _, w := range pool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				s.log.Warn("worker exited with error", zap.Stringer("run_id", id), zap.Error(err))
			}
		}()
	}
	go func() {
		wg.Wait()
		close(r.workers)
	}()
	go s.monitor(ctx, r)
	return id, nil
}

func (s *Supervisor) buildWorkers(r *run) ([]*worker.Worker, error) {
	pool := make([]*worker.Worker, 0, r.cfg.ThreadCount)
	for i := 1; i <= r.cfg.ThreadCount; i++ {
		w, err := worker.New(worker.Assignment{
			RunID:           r.id,
			Worker:          i,
			Region:          r.cfg.Region,
			Ghost:           r.cfg.Ghost,
			NamePrefix:      r.cfg.NamePrefix,
			PasswordPrefix:  r.cfg.PasswordPrefix,
			Target:          r.cfg.AccountCount,
			AutoActivation:  r.cfg.AutoActivation,
			RarityThreshold: r.cfg.RarityThreshold,
		}, worker.Deps{
			Counters:    s.opts.Counters,
			Events:      s.opts.Events,
			Synth:       s.opts.Synth,
			Accounts:    s.opts.Accounts,
			Progress:    s.opts.Progress,
			Pacer:       s.opts.Pacer,
			Clock:       s.opts.Clock,
			IDs:         s.opts.IDs,
			Logger:      s.opts.Logger.Named("worker"),
			MaxFailures: s.opts.MaxFailures,
		})
		if err != nil {
			return nil, fmt.Errorf("job: build worker %d: %w", i, err)
		}
		pool = append(pool, w)
	}
	return pool, nil
}

func (s *Supervisor) banner(cfg Config) {
	region := cfg.Region
	if cfg.Ghost {
		region += " (GHOST MODE)"
	}
	activation := "OFF"
	if cfg.AutoActivation {
		activation = "ON"
	}
	for _, line := range []string{
		fmt.Sprintf("🚀 Starting generation with %d threads...", cfg.ThreadCount),
		fmt.Sprintf("📍 Region: %s", region),
		fmt.Sprintf("🎯 Target: %d accounts", cfg.AccountCount),
		fmt.Sprintf("⚡ Auto-activation: %s", activation),
	} {
		s.opts.Events.Emit(logbridge.Classify(line), line)
	}
}

type endReason int

const (
	endCompleted endReason = iota
	endStopped
	endExhausted
	endFailed
)

// monitor watches one run until the quota is met, the run is stopped, or all
// workers are gone.
func (s *Supervisor) monitor(ctx context.Context, r *run) {
	defer close(r.done)
	reason := endFailed
	var failure any
	defer func() {
		if p := recover(); p != nil {
			failure = p
			reason = endFailed
			s.log.Error("job monitor panic", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
		s.finish(r, reason, failure)
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		if s.generated() >= r.cfg.AccountCount {
			reason = endCompleted
			return
		}
		select {
		case <-ctx.Done():
			reason = endStopped
			return
		case <-r.workers:
			if s.generated() >= r.cfg.AccountCount {
				reason = endCompleted
			} else {
				reason = endExhausted
			}
			return
		case <-ticker.C:
		}
	}
}

// finish releases the run. Only the run that is still current may flip the
// state to Idle.
func (s *Supervisor) finish(r *run, reason endReason, failure any) {
	s.mu.Lock()
	if s.current == r {
		s.state = Idle
	}
	s.mu.Unlock()

	r.cancel()
	<-r.workers

	s.mu.Lock()
	owner := s.current == r
	s.mu.Unlock()
	var snap counters.Snapshot
	if owner {
		// A newer run would have reset the counters.
		snap = s.opts.Counters.Snapshot()
	}
	elapsed := s.opts.Clock.Now().Sub(r.startedAt)
	evt := progress.Event{
		RunID: progress.UUIDToBytes(r.id),
		TS:    s.opts.Clock.Now(),
		Dur:   max(elapsed, 0),
	}
	fields := []zap.Field{
		zap.Stringer("run_id", r.id),
		zap.Duration("elapsed", elapsed),
		zap.Int64("generated", snap.Generated),
	}

	switch reason {
	case endCompleted:
		evt.Stage = progress.StageJobDone
		s.opts.Events.Emit(logbridge.CategorySuccess, "✅ Generation completed!")
		s.log.Info("job completed", fields...)
	case endStopped:
		evt.Stage = progress.StageJobStopped
		s.opts.Events.Emit(logbridge.CategoryWarning, "⏹️ Generation stopped")
		s.log.Info("job stopped", fields...)
	case endExhausted:
		evt.Stage = progress.StageJobDone
		evt.Note = "all workers exited before the target was reached"
		s.opts.Events.Emit(logbridge.CategoryWarning,
			fmt.Sprintf("⚠️ All workers exited early: %d/%d accounts generated", snap.Generated, r.cfg.AccountCount))
		s.log.Warn("job ended early", fields...)
	case endFailed:
		evt.Stage = progress.StageJobError
		evt.Note = fmt.Sprint(failure)
		s.opts.Events.Emit(logbridge.CategoryError, fmt.Sprintf("❌ Error in generator: %v", failure))
		s.log.Error("job failed", append(fields, zap.String("error", evt.Note))...)
	}
	s.opts.Progress.Emit(evt)
	r.endSpan(reason, snap.Generated, evt.Note)
}

var reasonNames = map[endReason]string{
	endCompleted: "completed",
	endStopped:   "stopped",
	endExhausted: "exhausted",
	endFailed:    "failed",
}

func (r *run) endSpan(reason endReason, generated int64, note string) {
	r.span.SetAttributes(
		attribute.String("outcome", reasonNames[reason]),
		attribute.Int64("generated", generated),
	)
	if reason == endFailed {
		r.span.SetStatus(codes.Error, note)
	}
	r.span.End()
}

// Stop cancels the active job and marks the supervisor Idle immediately.
// Workers finish at most their in-flight attempt. Stop on an idle supervisor
// is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running || s.current == nil {
		return
	}
	s.state = Idle
	s.current.cancel()
	s.log.Info("job stop requested", zap.Stringer("run_id", s.current.id))
}

// Wait blocks until the latest run's monitor has exited or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job: wait: %w", ctx.Err())
	}
}

// State returns the lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a job is active.
func (s *Supervisor) Running() bool {
	return s.State() == Running
}

// StartedAt returns the latest run's start time; ok is false if no job has
// ever started.
func (s *Supervisor) StartedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return time.Time{}, false
	}
	return s.current.startedAt, true
}

// Config returns the latest run's normalized configuration.
func (s *Supervisor) Config() (Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Config{}, false
	}
	return s.current.cfg, true
}

// RunID returns the latest run's id, or uuid.Nil before the first start.
func (s *Supervisor) RunID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return uuid.Nil
	}
	return s.current.id
}
