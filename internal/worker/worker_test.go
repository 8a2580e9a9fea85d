package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/counters"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
	"github.com/JakeFAU/bulkgen/internal/progress"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return "acc-" + strconv.FormatInt(s.n.Add(1), 10), nil
}

func assignment(worker int, target int64) Assignment {
	return Assignment{
		RunID:           uuid.New(),
		Worker:          worker,
		Region:          "IND",
		NamePrefix:      "KNX",
		PasswordPrefix:  "KNX",
		Target:          target,
		AutoActivation:  true,
		RarityThreshold: 4,
	}
}

func TestRunStopsAtTarget(t *testing.T) {
	t.Parallel()

	reg := counters.New()
	reg.Reset(5)
	bridge := logbridge.New(logbridge.Config{})
	store := accounts.NewMemoryStore()
	emitter := &recordingEmitter{}

	synth := SynthesizerFunc(func(_ context.Context, a Attempt) (Outcome, error) {
		return Outcome{Name: "KNXacc", Rare: a.Seq == 2, Activated: true}, nil
	})
	w, err := New(assignment(1, 5), Deps{
		Counters: reg, Events: bridge, Synth: synth, Accounts: store, Progress: emitter, IDs: &seqIDs{},
	})
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))

	snap := reg.Snapshot()
	require.Equal(t, int64(5), snap.Generated)
	require.Equal(t, int64(1), snap.Rare)
	require.Equal(t, int64(5), snap.Activated)

	all, err := store.All(context.Background(), accounts.All)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.NotEmpty(t, all[0].ID)
	rare, err := store.All(context.Background(), accounts.Rare)
	require.NoError(t, err)
	require.Len(t, rare, 1)

	stages := emitter.stages()
	require.Len(t, stages, 6)
	require.Equal(t, progress.StageWorkerExit, stages[5])

	var cats []logbridge.Category
	for _, evt := range bridge.Drain() {
		cats = append(cats, evt.Category)
	}
	require.Contains(t, cats, logbridge.CategorySuccess)
	require.Contains(t, cats, logbridge.CategoryRare)
	require.Contains(t, cats, logbridge.CategoryActivation)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	reg := counters.New()
	reg.Reset(1_000_000)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	synth := SynthesizerFunc(func(ctx context.Context, _ Attempt) (Outcome, error) {
		if calls.Add(1) == 3 {
			cancel()
		}
		return Outcome{Name: "x"}, nil
	})
	w, err := New(assignment(1, 1_000_000), Deps{Counters: reg, Events: logbridge.New(logbridge.Config{}), Synth: synth})
	require.NoError(t, err)
	require.NoError(t, w.Run(ctx))
	require.Equal(t, int64(3), calls.Load())
	// The attempt that observed cancellation is discarded.
	require.Equal(t, int64(2), reg.Get(counters.Generated))
}

func TestRunUnrecoverableError(t *testing.T) {
	t.Parallel()

	bridge := logbridge.New(logbridge.Config{})
	synth := SynthesizerFunc(func(context.Context, Attempt) (Outcome, error) {
		return Outcome{}, errors.Join(ErrUnrecoverable, errors.New("account banned"))
	})
	w, err := New(assignment(2, 10), Deps{Counters: counters.New(), Events: bridge, Synth: synth})
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.ErrorIs(t, err, ErrUnrecoverable)
	events := bridge.Drain()
	require.Len(t, events, 1)
	require.Equal(t, logbridge.CategoryError, events[0].Category)
	require.Contains(t, events[0].Message, "Thread 2 error:")
}

func TestRunGivesUpAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	bridge := logbridge.New(logbridge.Config{})
	var calls atomic.Int64
	synth := SynthesizerFunc(func(context.Context, Attempt) (Outcome, error) {
		n := calls.Add(1)
		if n == 2 {
			return Outcome{Name: "ok"}, nil
		}
		return Outcome{}, errors.New("timeout")
	})
	w, err := New(assignment(1, 100), Deps{Counters: counters.New(), Events: bridge, Synth: synth, MaxFailures: 3})
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.ErrorIs(t, err, ErrTooManyFailures)
	// one failure, one success resetting the streak, then three failures
	require.Equal(t, int64(5), calls.Load())

	warnings := 0
	for _, evt := range bridge.Drain() {
		if evt.Category == logbridge.CategoryWarning {
			warnings++
		}
	}
	require.Equal(t, 4, warnings)
}

func TestRunRecoversPanic(t *testing.T) {
	t.Parallel()

	bridge := logbridge.New(logbridge.Config{})
	emitter := &recordingEmitter{}
	synth := SynthesizerFunc(func(context.Context, Attempt) (Outcome, error) {
		panic("nil map write")
	})
	w, err := New(assignment(4, 10), Deps{Counters: counters.New(), Events: bridge, Synth: synth, Progress: emitter})
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.ErrorContains(t, err, "panic")
	events := bridge.Drain()
	require.Len(t, events, 1)
	require.Equal(t, "Thread 4 error: nil map write", events[0].Message)
	require.Equal(t, []progress.Stage{progress.StageWorkerExit}, emitter.stages())
}

type failingPacer struct{}

func (failingPacer) Wait(context.Context, string) error { return errors.New("limiter closed") }

func TestRunPacerError(t *testing.T) {
	t.Parallel()

	w, err := New(assignment(1, 10), Deps{
		Counters: counters.New(),
		Events:   logbridge.New(logbridge.Config{}),
		Synth:    SynthesizerFunc(func(context.Context, Attempt) (Outcome, error) { return Outcome{}, nil }),
		Pacer:    failingPacer{},
	})
	require.NoError(t, err)
	require.ErrorContains(t, w.Run(context.Background()), "limiter closed")
}

func TestConcurrentWorkersShareQuota(t *testing.T) {
	t.Parallel()

	reg := counters.New()
	reg.Reset(200)
	bridge := logbridge.New(logbridge.Config{Capacity: 100_000})
	synth := NewSimulated(SimulatedConfig{Seed: 7, CoupleRate: 0.2, ActivationFailureRate: 0.1})
	run := uuid.New()

	var wg sync.WaitGroup
	for i := 1; i <= 4; i++ {
		a := assignment(i, 200)
		a.RunID = run
		w, err := New(a, Deps{Counters: reg, Events: bridge, Synth: synth})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(context.Background())
		}()
	}
	wg.Wait()

	snap := reg.Snapshot()
	require.GreaterOrEqual(t, snap.Generated, int64(200))
	require.LessOrEqual(t, snap.Generated, int64(203))
	require.Equal(t, snap.Generated, snap.Activated+snap.Failed)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(assignment(1, 1), Deps{})
	require.Error(t, err)
	_, err = New(assignment(0, 1), Deps{
		Counters: counters.New(),
		Events:   logbridge.New(logbridge.Config{}),
		Synth:    NewSimulated(SimulatedConfig{}),
	})
	require.Error(t, err)
}
