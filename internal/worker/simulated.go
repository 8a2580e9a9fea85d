package worker

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SimulatedConfig tunes the built-in synthesizer.
type SimulatedConfig struct {
	// Seed makes runs reproducible. Each worker derives its own stream.
	Seed uint64
	// Latency is slept before each attempt returns.
	Latency time.Duration
	// CoupleRate is the chance an account pairs with the worker's previous one.
	CoupleRate float64
	// ActivationFailureRate is the chance auto-activation fails.
	ActivationFailureRate float64
	// ErrorRate is the chance an attempt fails with a transient error.
	ErrorRate float64
	// Diagnostics, when set, receives free-text progress lines.
	Diagnostics io.Writer
}

// Simulated synthesizes plausible accounts without any network access.
type Simulated struct {
	cfg SimulatedConfig

	mu      sync.Mutex
	streams map[int]*rand.Rand
	last    map[int]string
}

// NewSimulated returns a Simulated synthesizer.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{
		cfg:     cfg,
		streams: make(map[int]*rand.Rand),
		last:    make(map[int]string),
	}
}

// Synthesize implements Synthesizer.
func (s *Simulated) Synthesize(ctx context.Context, a Attempt) (Outcome, error) {
	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return Outcome{}, fmt.Errorf("simulated attempt: %w", ctx.Err())
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rng := s.stream(a.Worker)

	if s.cfg.ErrorRate > 0 && rng.Float64() < s.cfg.ErrorRate {
		s.diag("⚠️ Thread %d: registration rejected in %s, retrying", a.Worker, a.Region)
		return Outcome{}, fmt.Errorf("registration rejected for worker %d attempt %d", a.Worker, a.Seq)
	}

	out := Outcome{
		Name:        a.NamePrefix + randomString(rng, 8),
		Password:    a.PasswordPrefix + randomString(rng, 12),
		RarityScore: rarityScore(rng),
	}
	out.Rare = a.RarityThreshold > 0 && out.RarityScore >= a.RarityThreshold
	if prev, ok := s.last[a.Worker]; ok && s.cfg.CoupleRate > 0 && rng.Float64() < s.cfg.CoupleRate {
		out.CoupleOf = prev
	}
	s.last[a.Worker] = out.Name

	if a.AutoActivation {
		if s.cfg.ActivationFailureRate > 0 && rng.Float64() < s.cfg.ActivationFailureRate {
			out.ActivationFailed = true
		} else {
			out.Activated = true
		}
	}
	s.diag("Thread %d registered %s in %s", a.Worker, out.Name, a.Region)
	return out, nil
}

func (s *Simulated) stream(worker int) *rand.Rand {
	r, ok := s.streams[worker]
	if !ok {
		r = rand.New(rand.NewPCG(s.cfg.Seed, uint64(worker))) //nolint:gosec // simulation only
		s.streams[worker] = r
	}
	return r
}

func (s *Simulated) diag(format string, args ...any) {
	if s.cfg.Diagnostics == nil {
		return
	}
	_, _ = fmt.Fprintf(s.cfg.Diagnostics, format+"\n", args...)
}

// rarityScore counts leading coin-flip successes, capped at 10, so each point
// halves the odds.
func rarityScore(rng *rand.Rand) int {
	score := 0
	for score < 10 && rng.IntN(2) == 1 {
		score++
	}
	return score
}

func randomString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.IntN(len(alphabet))]
	}
	return string(b)
}
