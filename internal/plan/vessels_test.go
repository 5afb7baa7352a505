package plan

import (
	"testing"

	"github.com/dyluth/flexprep/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *VesselPool {
	return NewVesselPool(
		[]string{"C1", "C2", "C3", "C4", "C5", "C6"},
		[]string{"D1", "D2", "D3", "D4", "D5", "D6"},
	)
}

func TestAllocateNothingForNormalMixes(t *testing.T) {
	mixes := []layout.Mix{mixWith(0, "A1", "B1", 5, 2, 10)}
	pool := testPool()

	assigned, err := AllocateVessels(mixes, pool)

	require.NoError(t, err)
	assert.Empty(t, assigned)
	assert.Equal(t, 6, pool.SmallLeft())
	assert.Equal(t, 6, pool.FinalLeft())
}

func TestAllocateFinalVesselForOneSmallComponent(t *testing.T) {
	mixes := []layout.Mix{mixWith(0, "A1", "B1", 0.5, 5, 10)}
	pool := testPool()

	assigned, err := AllocateVessels(mixes, pool)

	require.NoError(t, err)
	a := assigned["A1"]
	assert.Empty(t, a.Small, "one small component needs no staging vessel")
	assert.Equal(t, "D1", a.Final)
	assert.Equal(t, 6, pool.SmallLeft(), "the small pool must stay untouched")
	assert.Equal(t, 5, pool.FinalLeft())
}

func TestAllocateBothVesselsForPooledSmallComponents(t *testing.T) {
	mixes := []layout.Mix{mixWith(0, "A1", "B1", 0.5, 0.3, 10)}
	pool := testPool()

	assigned, err := AllocateVessels(mixes, pool)

	require.NoError(t, err)
	a := assigned["A1"]
	assert.Equal(t, "C1", a.Small)
	assert.Equal(t, "D1", a.Final)
}

func TestAllocateNeverSharesVessels(t *testing.T) {
	mixes := []layout.Mix{
		mixWith(0, "A1", "B1", 0.5, 0.3, 10),
		mixWith(1, "A2", "B1", 0.2, 5, 10),
		mixWith(2, "A3", "B1", 0.4, 0.1, 10),
		mixWith(3, "A4", "B1", 5, 2, 10),
	}
	pool := testPool()

	assigned, err := AllocateVessels(mixes, pool)
	require.NoError(t, err)

	require.Len(t, assigned, 3, "the all-normal mix takes nothing")
	seen := make(map[string]bool)
	for dest, a := range assigned {
		for _, v := range []string{a.Small, a.Final} {
			if v == "" {
				continue
			}
			assert.False(t, seen[v], "vessel %s assigned twice (last to %s)", v, dest)
			seen[v] = true
		}
	}
	assert.Equal(t, "C2", assigned["A3"].Small, "allocation follows mix order")
	assert.Equal(t, "D3", assigned["A3"].Final)
}

func TestAllocateExhaustionIsFatal(t *testing.T) {
	mixes := []layout.Mix{
		mixWith(0, "A1", "B1", 0.5, 0.3, 10),
		mixWith(1, "A2", "B1", 0.2, 0.1, 10),
	}
	pool := NewVesselPool([]string{"C1"}, []string{"D1"})

	assigned, err := AllocateVessels(mixes, pool)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "intermediate vessels", exhausted.Resource)
	assert.Contains(t, exhausted.Detail, "mix 2")
	assert.Contains(t, exhausted.Detail, "A2")

	// The first mix keeps its vessels; only the second one failed.
	assert.Equal(t, Assignment{Small: "C1", Final: "D1"}, assigned["A1"])
	assert.NotContains(t, assigned, "A2")
}

func TestAllocateOneSmallMixExhaustsFinalPoolOnly(t *testing.T) {
	mixes := []layout.Mix{
		mixWith(0, "A1", "B1", 0.5, 5, 10),
		mixWith(1, "A2", "B1", 0.5, 5, 10),
	}
	pool := NewVesselPool([]string{"C1", "C2"}, []string{"D1"})

	_, err := AllocateVessels(mixes, pool)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, exhausted.Detail, "final vessel")
	assert.Equal(t, 2, pool.SmallLeft(), "one-small mixes must never dip into the small pool")
}
