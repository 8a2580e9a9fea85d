package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/progress"
	"github.com/JakeFAU/bulkgen/internal/store"
)

// StoreSink persists run lifecycle and outcome totals. ACCOUNT events are
// collapsed into one delta per run per batch.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes starts first, then outcome deltas, then completions, so a
// batch holding a whole short run still lands in order.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]store.Outcomes)
	var order []uuid.UUID
	var finished []progress.Event

	for _, evt := range batch {
		id := evt.RunUUID()
		switch evt.Stage {
		case progress.StageJobStart:
			run := store.Run{
				ID:        id,
				StartedAt: evt.TS,
				Status:    store.RunRunning,
				Region:    evt.Region,
				Ghost:     evt.Ghost,
				Target:    evt.Target,
				Threads:   evt.Threads,
			}
			if err := s.repo.UpsertRunStart(ctx, run); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageAccount:
			if _, ok := deltas[id]; !ok {
				order = append(order, id)
			}
			deltas[id] = deltas[id].Add(outcomesOf(evt))
		case progress.StageJobDone, progress.StageJobStopped, progress.StageJobError:
			finished = append(finished, evt)
		}
	}

	for _, id := range order {
		delta := deltas[id]
		if delta.IsZero() {
			continue
		}
		if err := s.repo.AddOutcomes(ctx, id, delta); err != nil {
			return fmt.Errorf("add run outcomes: %w", err)
		}
	}

	for _, evt := range finished {
		status := store.RunCompleted
		switch evt.Stage {
		case progress.StageJobStopped:
			status = store.RunStopped
		case progress.StageJobError:
			status = store.RunError
		}
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func outcomesOf(evt progress.Event) store.Outcomes {
	var o store.Outcomes
	for _, got := range evt.Outcomes {
		switch got {
		case progress.OutcomeGenerated:
			o.Generated++
		case progress.OutcomeRare:
			o.Rare++
		case progress.OutcomeCouple:
			o.Couples++
		case progress.OutcomeActivated:
			o.Activated++
		case progress.OutcomeFailed:
			o.Failed++
		}
	}
	return o
}
