package vanillaac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/network"
)

const (
	stateSize  = 3
	actionSize = 4
)

func smallConfig() Config {
	c := DefaultConfig(stateSize, actionSize)
	c.PolicyLayers = []int{8}
	c.PolicyBiases = []bool{true}
	c.PolicyActivations = network.ReLUs(1)
	c.ValueFnLayers = []int{8}
	c.ValueFnBiases = []bool{true}
	c.ValueFnActivations = network.ReLUs(1)
	return c
}

func newAgent(t *testing.T, seed uint64) *VAC {
	t.Helper()
	v, err := New(smallConfig(), seed)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func randomState(rng *rand.Rand) []float64 {
	state := make([]float64, stateSize)
	for i := range state {
		state[i] = rng.NormFloat64()
	}
	return state
}

func playEpisode(t *testing.T, v *VAC, steps int, rng *rand.Rand) {
	t.Helper()
	for i := 0; i < steps; i++ {
		available := rng.Perm(actionSize)[:2+rng.Intn(actionSize-1)]
		action, err := v.SelectAction(randomState(rng), available, true)
		require.NoError(t, err)
		require.Contains(t, available, action)
		require.NoError(t, v.StoreReward(rng.Float64(), i == steps-1))
	}
}

func TestTrainStepOnEmptyEpisode(t *testing.T) {
	v := newAgent(t, 1)
	losses, err := v.TrainStep()
	require.NoError(t, err)
	assert.Zero(t, losses.PolicyLoss)
	assert.Zero(t, losses.ValueLoss)
	assert.True(t, losses.IsZero())
}

func TestTrainStepUpdatesActorAndCritic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := newAgent(t, 1)

	for _, steps := range []int{5, 5, 8} {
		playEpisode(t, v, steps, rng)
		require.True(t, v.ReadyToTrain(true))
		before, err := v.StateDict()
		require.NoError(t, err)

		losses, err := v.TrainStep()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, losses.ValueLoss, 0.0)
		assert.Greater(t, losses.Entropy, 0.0)
		assert.InDelta(t, losses.PolicyLoss+0.5*losses.ValueLoss,
			losses.Loss, 1e-12)

		after, err := v.StateDict()
		require.NoError(t, err)
		assert.NotEqual(t, before.Params["actor"], after.Params["actor"])
		assert.NotEqual(t, before.Params["critic"], after.Params["critic"])
		assert.Equal(t, 0, v.buffer.Len())
	}
}

func TestStateDictRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	trained := newAgent(t, 1)
	playEpisode(t, trained, 6, rng)
	_, err := trained.TrainStep()
	require.NoError(t, err)

	s, err := trained.StateDict()
	require.NoError(t, err)
	loaded := newAgent(t, 7)
	require.NoError(t, loaded.LoadStateDict(s))

	reloaded, err := loaded.StateDict()
	require.NoError(t, err)
	assert.Equal(t, s, reloaded)

	for i := 0; i < 20; i++ {
		state := randomState(rng)
		want, err := trained.SelectAction(state, []int{0, 1, 3}, false)
		require.NoError(t, err)
		got, err := loaded.SelectAction(state, []int{0, 1, 3}, false)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	delete(s.Params, "critic")
	assert.Error(t, loaded.LoadStateDict(s))

	s.Type = agent.VanillaPG
	assert.True(t, errors.Is(loaded.LoadStateDict(s),
		agent.ErrDimensionMismatch))
}
