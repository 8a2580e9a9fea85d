package counters

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryConcurrentIncrementsAreExact(t *testing.T) {
	t.Parallel()

	const (
		workers    = 16
		increments = 2500
	)
	reg := New()
	reg.Reset(workers * increments)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				reg.Increment(Generated)
				_ = reg.Snapshot()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(workers*increments), reg.Get(Generated))
	require.True(t, reg.Reached())
}

func TestRegistryResetZeroesCountersAndSetsTarget(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.Increment(Generated)
	reg.Increment(Rare)
	reg.Add(Couples, 3)
	reg.Increment(Activated)
	reg.Increment(Failed)

	reg.Reset(10)

	require.Equal(t, Snapshot{Target: 10}, reg.Snapshot())
	require.False(t, reg.Reached())
}

func TestRegistryIgnoresNegativeDeltasAndUnknownKinds(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.Add(Rare, 2)
	require.Equal(t, int64(2), reg.Add(Rare, -5))
	require.Equal(t, int64(0), reg.Increment(Kind(42)))
	require.Equal(t, int64(0), reg.Get(Kind(-1)))
}

func TestRegistryReachedRequiresPositiveTarget(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Increment(Generated)
	require.False(t, reg.Reached())

	reg.Reset(1)
	require.False(t, reg.Reached())
	reg.Increment(Generated)
	require.True(t, reg.Reached())
}

func TestKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "generated", Generated.String())
	require.Equal(t, "couples", Couples.String())
	require.Equal(t, "kind(9)", Kind(9).String())
}
