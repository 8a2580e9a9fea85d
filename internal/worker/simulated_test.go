package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedDeterministic(t *testing.T) {
	t.Parallel()

	a := Attempt{Worker: 1, NamePrefix: "KNX", PasswordPrefix: "PW", RarityThreshold: 4, AutoActivation: true}
	s1 := NewSimulated(SimulatedConfig{Seed: 42})
	s2 := NewSimulated(SimulatedConfig{Seed: 42})
	for i := range 20 {
		a.Seq = int64(i + 1)
		o1, err := s1.Synthesize(context.Background(), a)
		require.NoError(t, err)
		o2, err := s2.Synthesize(context.Background(), a)
		require.NoError(t, err)
		require.Equal(t, o1, o2)
		require.True(t, strings.HasPrefix(o1.Name, "KNX"))
		require.True(t, strings.HasPrefix(o1.Password, "PW"))
		require.Len(t, o1.Name, 11)
		require.Equal(t, o1.RarityScore >= 4, o1.Rare)
		require.True(t, o1.Activated)
	}
}

func TestSimulatedCouplesAndFailures(t *testing.T) {
	t.Parallel()

	s := NewSimulated(SimulatedConfig{Seed: 1, CoupleRate: 1, ActivationFailureRate: 1})
	a := Attempt{Worker: 3, NamePrefix: "K", AutoActivation: true}
	first, err := s.Synthesize(context.Background(), a)
	require.NoError(t, err)
	require.Empty(t, first.CoupleOf)
	second, err := s.Synthesize(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, first.Name, second.CoupleOf)
	require.True(t, second.ActivationFailed)
	require.False(t, second.Activated)
}

func TestSimulatedNoActivationWhenDisabled(t *testing.T) {
	t.Parallel()

	out, err := NewSimulated(SimulatedConfig{}).Synthesize(context.Background(), Attempt{Worker: 1})
	require.NoError(t, err)
	require.False(t, out.Activated)
	require.False(t, out.ActivationFailed)
	require.False(t, out.Rare)
}

func TestSimulatedErrorsAndDiagnostics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewSimulated(SimulatedConfig{ErrorRate: 1, Diagnostics: &buf})
	_, err := s.Synthesize(context.Background(), Attempt{Worker: 2, Region: "BR"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnrecoverable)
	require.Contains(t, buf.String(), "Thread 2")
}

func TestSimulatedLatencyHonorsContext(t *testing.T) {
	t.Parallel()

	s := NewSimulated(SimulatedConfig{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Synthesize(ctx, Attempt{Worker: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
