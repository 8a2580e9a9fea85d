package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnrecoverable marks synthesizer errors that must stop the worker.
var ErrUnrecoverable = errors.New("unrecoverable synthesis error")

// ErrTooManyFailures is returned once a worker hits MaxConsecutiveErrors.
var ErrTooManyFailures = errors.New("too many consecutive synthesis failures")

// Attempt is the input to one synthesis call.
type Attempt struct {
	RunID           uuid.UUID
	Worker          int
	Seq             int64
	Region          string
	Ghost           bool
	NamePrefix      string
	PasswordPrefix  string
	AutoActivation  bool
	RarityThreshold int
}

// Outcome describes one synthesized account.
type Outcome struct {
	Name        string
	Password    string
	RarityScore int
	Rare        bool
	// CoupleOf names the partner account when the two were paired.
	CoupleOf         string
	Activated        bool
	ActivationFailed bool
}

// Synthesizer performs a single attempt. Implementations should return
// promptly once ctx is done.
type Synthesizer interface {
	Synthesize(ctx context.Context, attempt Attempt) (Outcome, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, attempt Attempt) (Outcome, error)

// Synthesize implements Synthesizer.
func (f SynthesizerFunc) Synthesize(ctx context.Context, attempt Attempt) (Outcome, error) {
	return f(ctx, attempt)
}
