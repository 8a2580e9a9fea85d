package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExampleHub_Emit shows a run start flushed on Close.
func ExampleHub_Emit() {
	var total int
	counting := sinkFunc(func(_ context.Context, batch []Event) error {
		total += len(batch)
		return nil
	})
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, counting)

	hub.Emit(Event{
		RunID:   UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:      time.Unix(0, 0),
		Stage:   StageJobStart,
		Target:  10,
		Threads: 3,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", total)
	// Output:
	// events forwarded: 1
}

// ExampleSink tallies rare accounts from ACCOUNT events.
func ExampleSink() {
	var rare int
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageAccount && evt.Has(OutcomeRare) {
				rare++
			}
		}
		return nil
	})
	hub := NewHub(Config{MaxBatchEvents: 8, MaxBatchWait: time.Second}, capture)

	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000002"))
	for i, outcomes := range [][]Outcome{
		{OutcomeGenerated, OutcomeRare},
		{OutcomeGenerated},
		{OutcomeGenerated, OutcomeRare, OutcomeActivated},
	} {
		hub.Emit(Event{RunID: run, TS: time.Unix(int64(i), 0), Stage: StageAccount, Worker: 1, Outcomes: outcomes})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("rare accounts: %d\n", rare)
	// Output:
	// rare accounts: 2
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
