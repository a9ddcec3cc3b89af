package ladder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRungThresholds(t *testing.T) {
	t.Parallel()

	th := Defaults()

	r := th.Rung(1, 50*time.Millisecond)
	assert.Equal(t, LevelQuiet, r.Level)
	assert.Empty(t, r.Status)
	assert.Empty(t, r.Choices)

	r = th.Rung(1, 150*time.Millisecond)
	assert.Equal(t, LevelGlimpse, r.Level)
	assert.Equal(t, "Glimpse 1…", r.Status)

	r = th.Rung(2, 400*time.Millisecond)
	assert.Equal(t, LevelReassure, r.Level)
	assert.Equal(t, "Glimpse 2… making sure it matches your intent…", r.Status)
	assert.Equal(t, []Choice{ChoiceCancel, ChoiceKeepWaiting}, r.Choices)

	r = th.Rung(1, time.Second)
	assert.Equal(t, LevelOffer, r.Level)
	assert.Contains(t, r.Choices, ChoiceCommitBlind)
	assert.Contains(t, r.Choices, ChoiceEssenceOnly)

	r = th.Rung(1, 3*time.Second)
	assert.Equal(t, LevelDegraded, r.Level)
	assert.Equal(t, "Glimpse 1… still trying…", r.Status)
}

// The ladder only ever escalates: a later point in time is never less
// transparent than an earlier one.
func TestRungMonotonic(t *testing.T) {
	t.Parallel()

	th := Defaults()
	prev := Rung{Level: LevelQuiet}
	for e := time.Duration(0); e <= 5*time.Second; e += 10 * time.Millisecond {
		r := th.Rung(1, e)
		require.GreaterOrEqual(t, r.Level, prev.Level, "elapsed %v", e)
		require.GreaterOrEqual(t, len(r.Choices), len(prev.Choices), "elapsed %v", e)
		prev = r
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	th := Defaults()

	next, ok := th.Next(0)
	require.True(t, ok)
	assert.Equal(t, DefaultT1, next)

	next, ok = th.Next(500 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, DefaultT3, next)

	_, ok = th.Next(2 * time.Second)
	assert.False(t, ok)
}
