package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ts "github.com/samuelfneumann/goplace/timestep"
)

func transition(i int) ts.Transition {
	return ts.Transition{
		State:     []float64{float64(i), 0},
		Action:    i,
		Reward:    float64(i),
		NextState: []float64{float64(i + 1), 0},
	}
}

func TestBufferEvictsOldestFirst(t *testing.T) {
	const capacity = 5
	b, err := New(capacity, 2, 1)
	require.NoError(t, err)

	for i := 0; i <= capacity; i++ {
		require.NoError(t, b.Add(transition(i)))
		assert.LessOrEqual(t, b.Len(), capacity)
	}

	assert.Equal(t, capacity, b.Len())
	actions := make([]int, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		actions = append(actions, b.At(i).Action)
	}
	assert.NotContains(t, actions, 0, "oldest transition must be evicted")
	assert.Contains(t, actions, capacity, "newest transition must be present")
	assert.Equal(t, []int{1, 2, 3, 4, 5}, actions)
}

func TestBufferSampleErrors(t *testing.T) {
	b, err := New(10, 2, 1)
	require.NoError(t, err)

	_, err = b.Sample(2)
	assert.True(t, IsEmptyBuffer(err))
	assert.False(t, IsInsufficientSamples(err))

	require.NoError(t, b.Add(transition(0)))
	_, err = b.Sample(2)
	assert.True(t, IsInsufficientSamples(err))
	assert.False(t, IsEmptyBuffer(err))
}

func TestBufferSampleWithoutReplacement(t *testing.T) {
	b, err := New(10, 2, 7)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Add(transition(i)))
	}

	batch, err := b.Sample(4)
	require.NoError(t, err)
	require.Equal(t, 4, batch.Len())
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, batch.Actions)
	assert.Len(t, batch.States, 8)
	assert.Len(t, batch.NextStates, 8)
	for i, a := range batch.Actions {
		assert.Equal(t, float64(a), batch.States[2*i])
		assert.Equal(t, float64(a), batch.Rewards[i])
	}
}

func TestBufferSampleDistinctFromLargeBuffer(t *testing.T) {
	const capacity = 1000
	b, err := New(capacity, 2, 3)
	require.NoError(t, err)
	for i := 0; i < capacity+250; i++ {
		require.NoError(t, b.Add(transition(i)))
	}

	seen := make(map[int]int)
	for trial := 0; trial < 200; trial++ {
		batch, err := b.Sample(32)
		require.NoError(t, err)
		require.Equal(t, 32, batch.Len())

		distinct := make(map[int]bool, batch.Len())
		for _, a := range batch.Actions {
			assert.GreaterOrEqual(t, a, 250, "evicted transition sampled")
			assert.Less(t, a, capacity+250)
			assert.False(t, distinct[a], "transition %d sampled twice", a)
			distinct[a] = true
			seen[a]++
		}
	}

	// 6400 draws over 1000 transitions reach most of the buffer
	assert.Greater(t, len(seen), 900)
}

func TestBufferRejectsWrongStateLength(t *testing.T) {
	b, err := New(3, 2, 1)
	require.NoError(t, err)
	err = b.Add(ts.Transition{State: []float64{1}, NextState: []float64{1, 2}})
	assert.Error(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestBufferClear(t *testing.T) {
	b, err := New(3, 2, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(transition(i)))
	}
	b.Clear()
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Add(transition(9)))
	assert.Equal(t, 9, b.At(0).Action)
}
