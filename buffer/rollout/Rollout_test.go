package rollout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRewardAttachesToLatestStep(t *testing.T) {
	var b Buffer
	assert.Error(t, b.Reward(1, false), "reward without an action")

	b.Append([]float64{1, 2}, []int{0, 1}, 1, 0.5, -0.7)
	assert.Empty(t, b.Complete(), "step awaiting its reward is incomplete")

	require.NoError(t, b.Reward(2, false))
	assert.Error(t, b.Reward(3, false), "second reward for the same action")

	b.Append([]float64{3, 4}, []int{0}, 0, 0.25, -0.1)
	require.NoError(t, b.Reward(-1, true))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Episodes())
	assert.Equal(t, []float64{2, -1}, b.Rewards())
	assert.Equal(t, []float64{0.5, 0.25}, b.Values())
	assert.Equal(t, []float64{-0.7, -0.1}, b.LogProbs())
	assert.Equal(t, []bool{false, true}, b.Dones())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Rewards())
}

func TestBufferCopiesInputs(t *testing.T) {
	var b Buffer
	state := []float64{1, 2}
	avail := []int{3}
	b.Append(state, avail, 3, 0, 0)
	state[0] = 9
	avail[0] = 9
	require.NoError(t, b.Reward(0, true))
	assert.Equal(t, []float64{1, 2}, b.Complete()[0].State)
	assert.Equal(t, []int{3}, b.Complete()[0].Available)
}

func TestBufferDecisionColumnsSkipPendingStep(t *testing.T) {
	var b Buffer
	b.Append([]float64{1, 2}, []int{0, 1}, 1, 0, 0)
	require.NoError(t, b.Reward(1, false))
	b.Append([]float64{3, 4}, []int{1}, 1, 0, 0)

	assert.True(t, b.Pending())
	assert.Equal(t, []float64{1, 2}, b.States())
	assert.Equal(t, [][]int{{0, 1}}, b.Available())
	assert.Equal(t, []int{1}, b.Actions())

	require.NoError(t, b.Reward(0, true))
	assert.False(t, b.Pending())
	assert.Equal(t, []float64{1, 2, 3, 4}, b.States())
}
