// Package worker runs the per-thread attempt loop: pace, synthesize, count,
// report. Workers share nothing but the counter registry and their sinks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/counters"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
	"github.com/JakeFAU/bulkgen/internal/metrics"
	"github.com/JakeFAU/bulkgen/internal/progress"
)

// DefaultMaxConsecutiveErrors bounds back-to-back transient failures.
const DefaultMaxConsecutiveErrors = 5

// Assignment is the immutable per-worker slice of a job.
type Assignment struct {
	RunID           uuid.UUID
	Worker          int
	Region          string
	Ghost           bool
	NamePrefix      string
	PasswordPrefix  string
	Target          int64
	AutoActivation  bool
	RarityThreshold int
}

// EventSink receives classified user-facing events.
type EventSink interface {
	Emit(category logbridge.Category, message string)
}

// Pacer gates attempts per region.
type Pacer interface {
	Wait(ctx context.Context, region string) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator names accounts.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the collaborators shared by every worker of a job. Counters, Events
// and Synth are required.
type Deps struct {
	Counters    *counters.Registry
	Events      EventSink
	Synth       Synthesizer
	Accounts    accounts.Sink
	Progress    progress.Emitter
	Pacer       Pacer
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger
	MaxFailures int
}

// Worker executes attempts for one Assignment.
type Worker struct {
	a    Assignment
	deps Deps
	log  *zap.Logger
}

// New validates deps and fills defaults.
func New(a Assignment, deps Deps) (*Worker, error) {
	if deps.Counters == nil || deps.Events == nil || deps.Synth == nil {
		return nil, errors.New("worker: counters, events and synthesizer are required")
	}
	if a.Worker <= 0 {
		return nil, fmt.Errorf("worker: invalid worker id %d", a.Worker)
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.MaxFailures <= 0 {
		deps.MaxFailures = DefaultMaxConsecutiveErrors
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Worker{
		a:    a,
		deps: deps,
		log:  deps.Logger.With(zap.Int("worker", a.Worker), zap.Stringer("run_id", a.RunID)),
	}, nil
}

// Run loops until the shared generated counter reaches the target, ctx is
// done, or an unrecoverable error occurs. It never panics; a panic inside an
// attempt is reported as "Thread N error" and ends only this worker.
func (w *Worker) Run(ctx context.Context) (err error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveWorkerError(metrics.WorkerErrorPanic)
			w.deps.Events.Emit(logbridge.CategoryError, fmt.Sprintf("Thread %d error: %v", w.a.Worker, r))
			w.log.Error("worker panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("worker %d panic: %v", w.a.Worker, r)
		}
		w.deps.Progress.Emit(progress.Event{
			RunID:  progress.UUIDToBytes(w.a.RunID),
			TS:     w.deps.Clock.Now(),
			Stage:  progress.StageWorkerExit,
			Worker: w.a.Worker,
			Note:   errNote(err),
		})
	}()

	failures := 0
	for seq := int64(1); ; seq++ {
		if ctx.Err() != nil || w.done() {
			return nil
		}
		if w.deps.Pacer != nil {
			if err := w.deps.Pacer.Wait(ctx, w.a.Region); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("worker %d: %w", w.a.Worker, err)
			}
		}

		start := w.deps.Clock.Now()
		out, err := w.deps.Synth.Synthesize(ctx, w.attempt(seq))
		if ctx.Err() != nil {
			// Results that land after stop belong to no job.
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrUnrecoverable) {
				metrics.ObserveWorkerError(metrics.WorkerErrorUnrecoverable)
				w.deps.Events.Emit(logbridge.CategoryError, fmt.Sprintf("Thread %d error: %v", w.a.Worker, err))
				w.log.Warn("unrecoverable synthesis error", zap.Error(err))
				return fmt.Errorf("worker %d: %w", w.a.Worker, err)
			}
			failures++
			metrics.ObserveWorkerError(metrics.WorkerErrorTransient)
			w.deps.Events.Emit(logbridge.CategoryWarning,
				fmt.Sprintf("⚠️ Thread %d attempt failed (%d/%d): %v", w.a.Worker, failures, w.deps.MaxFailures, err))
			if failures >= w.deps.MaxFailures {
				w.deps.Events.Emit(logbridge.CategoryError,
					fmt.Sprintf("Thread %d error: giving up after %d consecutive failures", w.a.Worker, failures))
				return fmt.Errorf("worker %d: %w: %w", w.a.Worker, ErrTooManyFailures, err)
			}
			continue
		}
		failures = 0
		w.record(ctx, out, w.deps.Clock.Now().Sub(start))
	}
}

func (w *Worker) done() bool {
	return w.a.Target > 0 && w.deps.Counters.Get(counters.Generated) >= w.a.Target
}

func (w *Worker) attempt(seq int64) Attempt {
	return Attempt{
		RunID:           w.a.RunID,
		Worker:          w.a.Worker,
		Seq:             seq,
		Region:          w.a.Region,
		Ghost:           w.a.Ghost,
		NamePrefix:      w.a.NamePrefix,
		PasswordPrefix:  w.a.PasswordPrefix,
		AutoActivation:  w.a.AutoActivation,
		RarityThreshold: w.a.RarityThreshold,
	}
}

func (w *Worker) record(ctx context.Context, out Outcome, dur time.Duration) {
	n := w.deps.Counters.Increment(counters.Generated)
	emit := w.deps.Events.Emit
	emit(logbridge.CategorySuccess,
		fmt.Sprintf("✅ [Thread %d] Account #%d/%d generated: %s", w.a.Worker, n, w.a.Target, out.Name))

	cats := make([]accounts.Category, 0, 3)
	outcomes := []progress.Outcome{progress.OutcomeGenerated}
	if out.Rare {
		w.deps.Counters.Increment(counters.Rare)
		cats = append(cats, accounts.Rare)
		outcomes = append(outcomes, progress.OutcomeRare)
		emit(logbridge.CategoryRare, fmt.Sprintf("💎 Rare account found: %s (score %d)", out.Name, out.RarityScore))
	}
	if out.CoupleOf != "" {
		w.deps.Counters.Increment(counters.Couples)
		cats = append(cats, accounts.Couples)
		outcomes = append(outcomes, progress.OutcomeCouple)
		emit(logbridge.CategoryCouple, fmt.Sprintf("💑 Couple pair: %s + %s", out.CoupleOf, out.Name))
	}
	switch {
	case out.Activated:
		w.deps.Counters.Increment(counters.Activated)
		cats = append(cats, accounts.Activated)
		outcomes = append(outcomes, progress.OutcomeActivated)
		emit(logbridge.CategoryActivation, fmt.Sprintf("🔥 Account activated: %s", out.Name))
	case out.ActivationFailed:
		w.deps.Counters.Increment(counters.Failed)
		cats = append(cats, accounts.Failed)
		outcomes = append(outcomes, progress.OutcomeFailed)
		emit(logbridge.CategoryError, fmt.Sprintf("❌ Activation failed: %s", out.Name))
	}

	now := w.deps.Clock.Now()
	accountID := ""
	if w.deps.IDs != nil {
		id, err := w.deps.IDs.NewID()
		if err != nil {
			w.log.Warn("account id generation failed", zap.Error(err))
		}
		accountID = id
	}
	if w.deps.Accounts != nil {
		err := w.deps.Accounts.Record(ctx, accounts.Account{
			ID:               accountID,
			Name:             out.Name,
			Password:         out.Password,
			Region:           w.a.Region,
			Ghost:            w.a.Ghost,
			RarityScore:      out.RarityScore,
			CoupleOf:         out.CoupleOf,
			Activated:        out.Activated,
			ActivationFailed: out.ActivationFailed,
			Worker:           w.a.Worker,
			RunID:            w.a.RunID.String(),
			CreatedAt:        now,
			Categories:       cats,
		})
		if err != nil {
			emit(logbridge.CategoryWarning, fmt.Sprintf("⚠️ Thread %d could not save %s: %v", w.a.Worker, out.Name, err))
			w.log.Warn("account record failed", zap.String("account", out.Name), zap.Error(err))
		}
	}
	w.deps.Progress.Emit(progress.Event{
		RunID:     progress.UUIDToBytes(w.a.RunID),
		TS:        now,
		Stage:     progress.StageAccount,
		Worker:    w.a.Worker,
		Region:    w.a.Region,
		Ghost:     w.a.Ghost,
		AccountID: accountID,
		Outcomes:  outcomes,
		Dur:       dur,
	})
	w.log.Debug("account generated", zap.String("account", out.Name), zap.Int64("generated", n))
}

func errNote(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
